// Package config loads server settings from the environment and an optional
// config file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nstogner/supportchat/pkg/llm"
	"github.com/nstogner/supportchat/pkg/llm/gemini"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Config is the complete server configuration. Keys match the environment
// variable names.
type Config struct {
	OpenRouterAPIKey string `mapstructure:"openrouter_api_key"`
	GeminiAPIKey     string `mapstructure:"gemini_api_key"`
	Provider         string `mapstructure:"llm_provider"`

	Model         string        `mapstructure:"model"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Temperature   float64       `mapstructure:"temperature"`
	Timeout       time.Duration `mapstructure:"llm_timeout"`
	MaxRetries    int           `mapstructure:"llm_max_retries"`
	HistoryWindow int           `mapstructure:"history_window"`

	MaxMessageLength int `mapstructure:"max_message_length"`

	Port         int    `mapstructure:"port"`
	DatabasePath string `mapstructure:"database_path"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	SiteURL  string `mapstructure:"your_site_url"`
	SiteName string `mapstructure:"your_site_name"`

	RetentionDays     int    `mapstructure:"retention_days"`
	RetentionSchedule string `mapstructure:"retention_schedule"`
}

var keys = []string{
	"openrouter_api_key", "gemini_api_key", "llm_provider",
	"model", "max_tokens", "temperature", "llm_timeout", "llm_max_retries", "history_window",
	"max_message_length", "port", "database_path", "log_level", "log_format",
	"your_site_url", "your_site_name", "retention_days", "retention_schedule",
}

// Load reads configuration. configPath may be empty, in which case only
// defaults and the environment apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("llm_provider", ProviderOpenRouter)
	v.SetDefault("model", "")
	v.SetDefault("max_tokens", llm.DefaultMaxOutputTokens)
	v.SetDefault("temperature", llm.DefaultTemperature)
	v.SetDefault("llm_timeout", llm.DefaultTimeout)
	v.SetDefault("llm_max_retries", llm.DefaultMaxAttempts)
	v.SetDefault("history_window", llm.DefaultHistoryWindow)
	v.SetDefault("max_message_length", 2000)
	v.SetDefault("port", 5000)
	v.SetDefault("database_path", "data/supportchat.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("your_site_url", "")
	v.SetDefault("your_site_name", "")
	v.SetDefault("retention_days", 0)
	v.SetDefault("retention_schedule", "@daily")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without defaults are invisible to AutomaticEnv.
	for _, k := range keys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", configPath, err)
			}
		}
	}

	// A bare number of milliseconds is accepted alongside "30s".
	switch raw := v.Get("llm_timeout").(type) {
	case string:
		if ms, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			v.Set("llm_timeout", time.Duration(ms)*time.Millisecond)
		}
	case int:
		v.Set("llm_timeout", time.Duration(raw)*time.Millisecond)
	case int64:
		v.Set("llm_timeout", time.Duration(raw)*time.Millisecond)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Model == "" {
		cfg.Model = cfg.defaultModel()
	}
	return &cfg, nil
}

func (c *Config) defaultModel() string {
	if c.Provider == ProviderGemini {
		return gemini.DefaultModel
	}
	return llm.DefaultModel
}

// APIKey returns the key for the selected provider.
func (c *Config) APIKey() string {
	if c.Provider == ProviderGemini {
		return c.GeminiAPIKey
	}
	return c.OpenRouterAPIKey
}

// Validate returns every problem found, or nil.
func (c *Config) Validate() []error {
	var errs []error

	switch c.Provider {
	case ProviderOpenRouter:
		if c.OpenRouterAPIKey == "" {
			errs = append(errs, errors.New("OPENROUTER_API_KEY is required when LLM_PROVIDER is openrouter"))
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when LLM_PROVIDER is gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", ProviderOpenRouter, ProviderGemini, c.Provider))
	}

	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("MAX_TOKENS must be positive, got %d", c.MaxTokens))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("TEMPERATURE must be between 0 and 2, got %g", c.Temperature))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("LLM_TIMEOUT must be positive, got %s", c.Timeout))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("LLM_MAX_RETRIES must not be negative, got %d", c.MaxRetries))
	}
	if c.HistoryWindow <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_WINDOW must be positive, got %d", c.HistoryWindow))
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH is required"))
	}
	if c.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("RETENTION_DAYS must not be negative, got %d", c.RetentionDays))
	}
	return errs
}

// InvokerOptions maps the configuration onto llm.Options.
func (c *Config) InvokerOptions() llm.Options {
	return llm.Options{
		Model:           c.Model,
		MaxOutputTokens: c.MaxTokens,
		Temperature:     c.Temperature,
		Timeout:         c.Timeout,
		MaxAttempts:     c.MaxRetries,
		HistoryWindow:   c.HistoryWindow,
	}
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
