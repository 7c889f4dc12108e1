// Package config loads server configuration from an optional YAML file with
// environment overrides. Secrets (provider key, JWT secret) are validated at
// startup so a misconfigured server never reaches serving state.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen            string   `yaml:"listen"`
	DatabasePath      string   `yaml:"database_path"`
	AnthropicAPIKey   string   `yaml:"anthropic_api_key"`
	Model             string   `yaml:"model"`
	JWTSecret         string   `yaml:"jwt_secret"`
	TokenExpiry       string   `yaml:"token_expiry"`
	ChatRatePerMinute int      `yaml:"chat_rate_per_minute"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
}

func defaults() Config {
	return Config{
		Listen:            ":8080",
		DatabasePath:      "taskpilot.db",
		TokenExpiry:       "24h",
		ChatRatePerMinute: 10,
		AllowedOrigins:    []string{"http://localhost:3000", "http://127.0.0.1:3000"},
	}
}

// Load reads path (skipped when empty or absent) and applies environment
// overrides on top of defaults.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv("TP_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("TP_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := os.Getenv("TP_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("TP_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("TP_TOKEN_EXPIRY"); v != "" {
		cfg.TokenExpiry = v
	}
	if v := os.Getenv("TP_CHAT_RATE_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TP_CHAT_RATE_PER_MINUTE %q: %w", v, err)
		}
		cfg.ChatRatePerMinute = n
	}

	return cfg, nil
}

// Validate reports configuration that must block startup.
func (c Config) Validate() error {
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("anthropic_api_key (or ANTHROPIC_API_KEY) is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret (or TP_JWT_SECRET) is required")
	}
	if _, err := time.ParseDuration(c.TokenExpiry); err != nil {
		return fmt.Errorf("invalid token_expiry %q: %w", c.TokenExpiry, err)
	}
	if c.ChatRatePerMinute <= 0 {
		return fmt.Errorf("chat_rate_per_minute must be positive")
	}
	return nil
}

// Expiry returns the parsed token lifetime. Call Validate first.
func (c Config) Expiry() time.Duration {
	d, _ := time.ParseDuration(c.TokenExpiry)
	return d
}
