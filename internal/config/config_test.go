package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "gpt-3.5-turbo", cfg.DefaultModel)
	assert.Equal(t, "file", cfg.StoreBackend)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 10, cfg.HistoryWindow)
	assert.Equal(t, 20, cfg.MemoryLimit)
	assert.Equal(t, 3, cfg.UsernameMinLength)
	assert.Equal(t, 8, cfg.PasswordMinLength)
	assert.True(t, cfg.PasswordRequireSymbols)
	assert.False(t, cfg.StoreStrict)
	assert.Equal(t, "disk", cfg.AudioBackend)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("HISTORY_WINDOW", "6")
	t.Setenv("STORE_STRICT", "true")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SUPPORTED_MODELS", "m1, m2 ,")
	t.Setenv("DEFAULT_MODEL", "m2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 6, cfg.HistoryWindow)
	assert.True(t, cfg.StoreStrict)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, []string{"m1", "m2"}, cfg.SupportedModels)
	assert.Equal(t, "m2", cfg.DefaultModel)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("HISTORY_WINDOW", "lots")
	t.Setenv("SESSION_TTL", "forever")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.HistoryWindow)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no api key", map[string]string{"OPENAI_API_KEY": "", "GEMINI_API_KEY": "", "JWT_SECRET": "s"}},
		{"no jwt secret", map[string]string{"OPENAI_API_KEY": "k", "JWT_SECRET": ""}},
		{"bad backend", map[string]string{"OPENAI_API_KEY": "k", "JWT_SECRET": "s", "STORE_BACKEND": "mongo"}},
		{"bad audio backend", map[string]string{"OPENAI_API_KEY": "k", "JWT_SECRET": "s", "AUDIO_BACKEND": "tape"}},
		{"unsupported default model", map[string]string{"OPENAI_API_KEY": "k", "JWT_SECRET": "s", "DEFAULT_MODEL": "nope"}},
		{"zero window", map[string]string{"OPENAI_API_KEY": "k", "JWT_SECRET": "s", "HISTORY_WINDOW": "0"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestIsSupportedModel(t *testing.T) {
	cfg := &Config{SupportedModels: []string{"a", "b"}}
	assert.True(t, cfg.IsSupportedModel("a"))
	assert.False(t, cfg.IsSupportedModel("c"))
}
