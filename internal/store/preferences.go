package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// Recognized preference keys.
const (
	PrefTheme         = "theme"
	PrefModel         = "model"
	PrefTemperature   = "temperature"
	PrefMaxTokens     = "max_tokens"
	PrefTTSEnabled    = "tts_enabled"
	PrefVoice         = "voice"
	PrefSystemPrompt  = "system_prompt"
	PrefPersonality   = "personality"
	PrefMemoryEnabled = "memory_enabled"
)

const (
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTheme       = "dark"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
	DefaultVoice       = "alloy"
	DefaultPersonality = "Casual"
)

var (
	Themes        = []string{"dark", "light"}
	Voices        = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}
	Personalities = []string{"Professional", "Casual", "Fun"}
)

// Preferences is a user's settings. Keys outside the recognized set are kept
// as-is.
type Preferences map[string]any

func DefaultPreferences(model string) Preferences {
	if model == "" {
		model = DefaultModel
	}
	return Preferences{
		PrefTheme:         DefaultTheme,
		PrefModel:         model,
		PrefTemperature:   DefaultTemperature,
		PrefMaxTokens:     DefaultMaxTokens,
		PrefTTSEnabled:    false,
		PrefVoice:         DefaultVoice,
		PrefSystemPrompt:  "",
		PrefPersonality:   DefaultPersonality,
		PrefMemoryEnabled: true,
	}
}

func (p Preferences) Theme() string        { return p.str(PrefTheme, DefaultTheme) }
func (p Preferences) Model() string        { return p.str(PrefModel, "") }
func (p Preferences) Voice() string        { return p.str(PrefVoice, DefaultVoice) }
func (p Preferences) SystemPrompt() string { return p.str(PrefSystemPrompt, "") }
func (p Preferences) Personality() string  { return p.str(PrefPersonality, DefaultPersonality) }
func (p Preferences) TTSEnabled() bool     { return p.boolean(PrefTTSEnabled, false) }
func (p Preferences) MemoryEnabled() bool  { return p.boolean(PrefMemoryEnabled, true) }

func (p Preferences) Temperature() float64 {
	if f, ok := toFloat(p[PrefTemperature]); ok {
		return f
	}
	return DefaultTemperature
}

func (p Preferences) MaxTokens() int {
	if f, ok := toFloat(p[PrefMaxTokens]); ok {
		return int(f)
	}
	return DefaultMaxTokens
}

func (p Preferences) str(key, fallback string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return fallback
}

func (p Preferences) boolean(key string, fallback bool) bool {
	if b, ok := p[key].(bool); ok {
		return b
	}
	return fallback
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// PreferenceStore reads and merges the preferences kept on user records.
type PreferenceStore struct {
	users         *document[*User]
	defaultModel  string
	allowedModels []string
}

// Get returns the stored preferences layered over the defaults.
func (s *PreferenceStore) Get(ctx context.Context, username string) (Preferences, error) {
	var prefs Preferences
	err := s.users.view(ctx, func(users map[string]*User) error {
		user, ok := users[username]
		if !ok || user == nil {
			return ErrNotFound
		}
		prefs = s.withDefaults(user.Preferences)
		return nil
	})
	return prefs, err
}

// Update merges partial into the user's preferences. Recognized keys are
// validated; unknown keys are stored untouched.
func (s *PreferenceStore) Update(ctx context.Context, username string, partial map[string]any) (Preferences, error) {
	normalized := make(map[string]any, len(partial))
	for k, v := range partial {
		nv, err := s.validate(k, v)
		if err != nil {
			return nil, err
		}
		normalized[k] = nv
	}

	var prefs Preferences
	err := s.users.update(ctx, func(users map[string]*User) error {
		user, ok := users[username]
		if !ok || user == nil {
			return ErrNotFound
		}
		if user.Preferences == nil {
			user.Preferences = Preferences{}
		}
		for k, v := range normalized {
			user.Preferences[k] = v
		}
		prefs = s.withDefaults(user.Preferences)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

func (s *PreferenceStore) withDefaults(stored Preferences) Preferences {
	prefs := DefaultPreferences(s.defaultModel)
	for k, v := range stored {
		prefs[k] = v
	}
	return prefs
}

func (s *PreferenceStore) validate(key string, value any) (any, error) {
	switch key {
	case PrefTheme:
		return oneOf(key, value, Themes)
	case PrefVoice:
		return oneOf(key, value, Voices)
	case PrefPersonality:
		return oneOf(key, value, Personalities)
	case PrefModel:
		if len(s.allowedModels) == 0 {
			if m, ok := value.(string); ok && m != "" {
				return m, nil
			}
			return nil, invalid(key, "model must be a non-empty string")
		}
		return oneOf(key, value, s.allowedModels)
	case PrefTemperature:
		f, ok := toFloat(value)
		if !ok || f < 0 || f > 2 {
			return nil, invalid(key, "temperature must be a number between 0.0 and 2.0")
		}
		return f, nil
	case PrefMaxTokens:
		f, ok := toFloat(value)
		if !ok || f != math.Trunc(f) || f < 100 || f > 4000 {
			return nil, invalid(key, "max_tokens must be an integer between 100 and 4000")
		}
		return int(f), nil
	case PrefTTSEnabled, PrefMemoryEnabled:
		b, ok := value.(bool)
		if !ok {
			return nil, invalid(key, key+" must be a boolean")
		}
		return b, nil
	case PrefSystemPrompt:
		str, ok := value.(string)
		if !ok {
			return nil, invalid(key, "system_prompt must be a string")
		}
		return str, nil
	}
	return value, nil
}

func oneOf(key string, value any, allowed []string) (any, error) {
	str, ok := value.(string)
	if ok {
		for _, a := range allowed {
			if a == str {
				return str, nil
			}
		}
	}
	return nil, invalid(key, fmt.Sprintf("%s must be one of %v", key, allowed))
}
