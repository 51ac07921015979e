package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultBaseURL       = "http://localhost:5000"
	DefaultMaxAttempts   = 3
	DefaultSendTimeout   = 30 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

// Config holds the client settings. It can be read from a TOML file:
//
//	base_url = "http://localhost:5000"
//	max_attempts = 3
//	send_timeout = "30s"
//	health_timeout = "5s"
type Config struct {
	BaseURL string `toml:"base_url"`
	// MaxAttempts counts every request, including the first.
	MaxAttempts   int           `toml:"max_attempts"`
	SendTimeout   time.Duration `toml:"send_timeout"`
	HealthTimeout time.Duration `toml:"health_timeout"`
	Token         string        `toml:"token"`
}

// DefaultConfig returns the stock client settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		MaxAttempts:   DefaultMaxAttempts,
		SendTimeout:   DefaultSendTimeout,
		HealthTimeout: DefaultHealthTimeout,
	}
}

// DefaultConfigPath returns ~/.config/supportchat/client.toml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "client.toml"
	}
	return filepath.Join(home, ".config", "supportchat", "client.toml")
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading client config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing client config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = DefaultHealthTimeout
	}
}
