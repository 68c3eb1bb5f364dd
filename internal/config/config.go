package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.parley/config.toml.
type Config struct {
	// ServerURL is the base URL of the messaging service, e.g.
	// "https://chat.example.com". The live-connection endpoint is derived
	// from it.
	ServerURL string `toml:"server_url"`
	// AppID is sent as the X-App-ID header on every request.
	AppID          string `toml:"app_id"`
	DefaultProfile string `toml:"default_profile"`
	// HistoryPageSize is the page size for conversation history fetches.
	HistoryPageSize int `toml:"history_page_size"`
	// MarkReadOnView clears a conversation's unread counter while it is
	// the active conversation on screen.
	MarkReadOnView bool `toml:"mark_read_on_view"`
	// RequestTimeoutSeconds bounds every HTTP call made by the gateway.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

// Default returns a config with documented defaults applied.
func Default() *Config {
	return &Config{
		HistoryPageSize:       50,
		MarkReadOnView:        true,
		RequestTimeoutSeconds: 15,
	}
}

// Load reads config from the given path. Returns error if file missing.
// Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = 50
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		cfg.RequestTimeoutSeconds = 15
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
