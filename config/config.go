// Package config provides core orchestration configuration.
//
// This module contains only configuration relevant to the orchestration
// core: defaults, limits and behavior toggles. Environment parsing and
// infrastructure secrets (API keys, endpoints) belong to the bootstrap
// layer, not here.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CoreConfig holds the orchestration core configuration.
type CoreConfig struct {
	// Routing
	DefaultIntent string `yaml:"default_intent" json:"default_intent"`

	// LLM behavior
	Model                     string  `yaml:"model" json:"model"`
	ClassificationTemperature float64 `yaml:"classification_temperature" json:"classification_temperature"`
	ReplyTemperature          float64 `yaml:"reply_temperature" json:"reply_temperature"`
	MaxTokens                 int     `yaml:"max_tokens" json:"max_tokens"`

	// Collaboration
	CollabPermits int `yaml:"collab_permits" json:"collab_permits"`

	// Scheduling policy
	DefaultTimezone string `yaml:"default_timezone" json:"default_timezone"`
	RetryAttempts   int    `yaml:"retry_attempts" json:"retry_attempts"`
	RetryBackoffMS  int    `yaml:"retry_backoff_ms" json:"retry_backoff_ms"`

	// Bus
	MaxMessageHistory int `yaml:"max_message_history" json:"max_message_history"`

	// Storage
	PlanStorePath string `yaml:"plan_store_path" json:"plan_store_path"`

	// Logging
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Default returns a CoreConfig with default values.
func Default() *CoreConfig {
	return &CoreConfig{
		DefaultIntent:             "general.advice",
		Model:                     "claude-sonnet-4-20250514",
		ClassificationTemperature: 0.0,
		ReplyTemperature:          0.7,
		MaxTokens:                 1024,
		CollabPermits:             2,
		DefaultTimezone:           "Australia/Sydney",
		RetryAttempts:             3,
		RetryBackoffMS:            5000,
		MaxMessageHistory:         1000,
		PlanStorePath:             "assistant.db",
		LogLevel:                  "info",
	}
}

// Load reads a YAML config file and overlays it on the defaults.
// A missing path returns the defaults unchanged.
func Load(path string) (*CoreConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *CoreConfig) Validate() error {
	if c.CollabPermits < 1 {
		return fmt.Errorf("collab_permits must be >= 1, got %d", c.CollabPermits)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be >= 1, got %d", c.RetryAttempts)
	}
	if c.MaxMessageHistory < 1 {
		return fmt.Errorf("max_message_history must be >= 1, got %d", c.MaxMessageHistory)
	}
	if c.DefaultTimezone != "" {
		if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
			return fmt.Errorf("invalid default_timezone %q: %w", c.DefaultTimezone, err)
		}
	}
	return nil
}

// RetryBackoff returns the backoff as a duration.
func (c *CoreConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}
