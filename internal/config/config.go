package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	GeminiAPIKey    string
	DefaultModel    string
	SupportedModels []string
	HTTPPort        string
	LogLevel        string
	LogFormat       string
	JWTSecret       string

	StoreBackend string // "file" or "sqlite"
	DataDir      string
	DatabaseURL  string
	StoreStrict  bool

	SessionTTL    time.Duration
	HistoryWindow int
	MemoryLimit   int

	UsernameMinLength      int
	PasswordMinLength      int
	PasswordRequireSymbols bool

	TTSModel      string
	STTModel      string
	RemoteTimeout time.Duration

	AudioBackend string // "disk" or "minio"
	AudioDir     string
	Minio        MinioConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

var defaultModels = []string{"gpt-3.5-turbo", "gpt-4o-mini", "gpt-4o", "gemini-1.5-flash-latest"}

// Load reads the .env file (if any) and the process environment.
func Load() (*Config, error) {
	// .env is optional; the environment wins either way.
	_ = godotenv.Load()

	cfg := &Config{
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", "gpt-3.5-turbo"),
		SupportedModels: getEnvAsList("SUPPORTED_MODELS", defaultModels),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "INFO"),
		LogFormat:       getEnv("LOG_FORMAT", "console"),
		JWTSecret:       getEnv("JWT_SECRET", ""),

		StoreBackend: getEnv("STORE_BACKEND", "file"),
		DataDir:      getEnv("DATA_DIR", "data"),
		DatabaseURL:  getEnv("DATABASE_URL", "nova_chat.db"),
		StoreStrict:  getEnvAsBool("STORE_STRICT", false),

		SessionTTL:    getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		HistoryWindow: getEnvAsInt("HISTORY_WINDOW", 10),
		MemoryLimit:   getEnvAsInt("MEMORY_LIMIT", 20),

		UsernameMinLength:      getEnvAsInt("USERNAME_MIN_LENGTH", 3),
		PasswordMinLength:      getEnvAsInt("PASSWORD_MIN_LENGTH", 8),
		PasswordRequireSymbols: getEnvAsBool("PASSWORD_REQUIRE_SYMBOLS", true),

		TTSModel:      getEnv("TTS_MODEL", "tts-1"),
		STTModel:      getEnv("STT_MODEL", "whisper-1"),
		RemoteTimeout: getEnvAsDuration("REMOTE_TIMEOUT", 60*time.Second),

		AudioBackend: getEnv("AUDIO_BACKEND", "disk"),
		AudioDir:     getEnv("AUDIO_DIR", "data/audio"),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "nova-audio"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" && c.GeminiAPIKey == "" {
		return errors.New("OPENAI_API_KEY or GEMINI_API_KEY environment variable is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	switch c.StoreBackend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.AudioBackend {
	case "disk", "minio":
	default:
		return fmt.Errorf("unknown AUDIO_BACKEND %q", c.AudioBackend)
	}
	if !c.IsSupportedModel(c.DefaultModel) {
		return fmt.Errorf("DEFAULT_MODEL %q is not in SUPPORTED_MODELS", c.DefaultModel)
	}
	if c.HistoryWindow < 1 {
		return fmt.Errorf("HISTORY_WINDOW must be positive, got %d", c.HistoryWindow)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	return nil
}

func (c *Config) IsSupportedModel(model string) bool {
	for _, m := range c.SupportedModels {
		if m == model {
			return true
		}
	}
	return false
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
