// Package config loads runtime settings. Source priority, highest first:
// environment variables (DATACHAT_*), then the YAML file passed to Load,
// then built-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can use "30m" / "168h" forms.
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Settings holds the tunables for session retention, file cataloguing and
// the model provider.
type Settings struct {
	// DataDir is the root of on-disk file storage.
	DataDir string `yaml:"data_dir"`

	// MaxConversationHistory caps entries retained per session.
	MaxConversationHistory int `yaml:"max_conversation_history"`
	// MaxActiveSessions bounds live sessions; overflow evicts LRU.
	MaxActiveSessions int `yaml:"max_active_sessions"`
	// MaxFilesPerSession bounds registered files per session.
	MaxFilesPerSession int `yaml:"max_files_per_session"`

	// SessionTTL is the session retention window.
	SessionTTL Duration `yaml:"session_ttl"`
	// FileTTL is the file retention window, independent of sessions.
	FileTTL Duration `yaml:"file_ttl"`
	// CleanupInterval is the reaper sweep period.
	CleanupInterval Duration `yaml:"cleanup_interval"`

	// Provider selects the model adapter: "openai" or "anthropic".
	Provider string `yaml:"provider"`
	// Model is the provider-specific model id.
	Model string `yaml:"model"`
	// APIKey overrides the provider's environment credential.
	APIKey string `yaml:"api_key"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		DataDir:                "./uploads",
		MaxConversationHistory: 50,
		MaxActiveSessions:      100,
		MaxFilesPerSession:     5,
		SessionTTL:             Duration(7 * 24 * time.Hour),
		FileTTL:                Duration(7 * 24 * time.Hour),
		CleanupInterval:        Duration(time.Hour),
		Provider:               "openai",
	}
}

// Load reads settings from an optional YAML file and applies environment
// overrides. A missing file is not an error; a malformed one is.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return s, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, &s); err != nil {
				return s, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&s)
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func applyEnv(s *Settings) {
	if v := os.Getenv("DATACHAT_DATA_DIR"); v != "" {
		s.DataDir = v
	}
	if v := os.Getenv("DATACHAT_PROVIDER"); v != "" {
		s.Provider = v
	}
	if v := os.Getenv("DATACHAT_MODEL"); v != "" {
		s.Model = v
	}
	if v := os.Getenv("DATACHAT_API_KEY"); v != "" {
		s.APIKey = v
	}
}

// Validate rejects settings no component could run with.
func (s Settings) Validate() error {
	if s.MaxFilesPerSession <= 0 {
		return fmt.Errorf("max_files_per_session must be positive")
	}
	if s.MaxConversationHistory <= 0 {
		return fmt.Errorf("max_conversation_history must be positive")
	}
	if s.SessionTTL <= 0 || s.FileTTL <= 0 {
		return fmt.Errorf("session_ttl and file_ttl must be positive")
	}
	if s.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive")
	}
	switch s.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown provider %q", s.Provider)
	}
	return nil
}
