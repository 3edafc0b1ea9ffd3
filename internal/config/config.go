// Package config loads the server configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"skald/internal/observability"
	serverhttp "skald/internal/server/http"
)

// ProtectedConfig points the agent at the protected-service backend.
type ProtectedConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	AuthToken string        `mapstructure:"auth_token"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ModelProviderConfig describes one OpenAI-compatible endpoint.
type ModelProviderConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ModelsConfig maps model ids onto providers.
type ModelsConfig struct {
	Providers       map[string]ModelProviderConfig `mapstructure:"providers"`
	Models          map[string]string              `mapstructure:"models"`
	DefaultProvider string                         `mapstructure:"default_provider"`
	DefaultModel    string                         `mapstructure:"default_model"`
}

// ChatConfig tunes the answering loop.
type ChatConfig struct {
	SystemPrompt     string `mapstructure:"system_prompt"`
	MaxTurns         int    `mapstructure:"max_turns"`
	HistoryLimit     int    `mapstructure:"history_limit"`
	HistoryMaxTokens int    `mapstructure:"history_max_tokens"`
}

// Config is the full server configuration tree.
type Config struct {
	LogLevel  string                      `mapstructure:"log_level"`
	Server    serverhttp.Config           `mapstructure:"server"`
	Protected ProtectedConfig             `mapstructure:"protected"`
	Models    ModelsConfig                `mapstructure:"models"`
	Chat      ChatConfig                  `mapstructure:"chat"`
	Metrics   observability.MetricsConfig `mapstructure:"metrics"`
	Tracing   observability.TracingConfig `mapstructure:"tracing"`
}

// Load reads skald-config.yaml from the given path (or the working directory
// and $HOME when empty) and overlays SKALD_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("skald-config")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix("SKALD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing config file is fine when no explicit path was given;
		// environment variables and defaults still apply.
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("protected.timeout", 30*time.Second)
	v.SetDefault("chat.max_turns", 8)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "skald")
	v.SetDefault("tracing.sample_rate", 1.0)
}

func (c *Config) validate() error {
	if c.Protected.BaseURL == "" {
		return fmt.Errorf("protected.base_url is required")
	}
	if len(c.Models.Providers) == 0 {
		return fmt.Errorf("models.providers must not be empty")
	}
	for name, provider := range c.Models.Providers {
		if provider.BaseURL == "" {
			return fmt.Errorf("models.providers.%s.base_url is required", name)
		}
	}
	if c.Models.DefaultProvider == "" {
		return fmt.Errorf("models.default_provider is required")
	}
	if _, ok := c.Models.Providers[c.Models.DefaultProvider]; !ok {
		return fmt.Errorf("models.default_provider %q is not defined", c.Models.DefaultProvider)
	}
	return nil
}
