package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Notifier modes. The outbox writes notification rows to the database for
// a delivery collaborator to drain; gmail sends plain-text email directly.
const (
	NotifierOutbox = "outbox"
	NotifierGmail  = "gmail"
)

// Config represents the application configuration
type Config struct {
	DatabaseURL          string `yaml:"databaseURL" validate:"required"`
	ListenAddr           string `yaml:"listenAddr" validate:"required"`
	OfferWindowMinutes   int    `yaml:"offerWindowMinutes,omitempty" validate:"omitempty,min=1"`
	SweepIntervalSeconds int    `yaml:"sweepIntervalSeconds,omitempty" validate:"omitempty,min=5,max=60"`
	Notifier             string `yaml:"notifier,omitempty" validate:"omitempty,oneof=outbox gmail"`
	GmailUserID          string `yaml:"gmailUserID,omitempty" validate:"required_if=Notifier gmail"`
	GmailSender          string `yaml:"gmailSender,omitempty"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// OfferWindow returns the configured offer window, defaulting to 30 minutes
func (c *Config) OfferWindow() time.Duration {
	if c.OfferWindowMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.OfferWindowMinutes) * time.Minute
}

// SweepInterval returns the configured sweep interval, defaulting to 30
// seconds. Bounded at one minute so an abandoned offer is reclaimed quickly.
func (c *Config) SweepInterval() time.Duration {
	if c.SweepIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// LoadWithEnv loads and validates the configuration with an environment
// suffix. For example, env="test" will look for "cascade_config.test.yaml".
func LoadWithEnv(env string) (*Config, error) {
	configPath, err := findConfigFile(env)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration struct
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// findConfigFile searches for the environment's config file in the current
// directory and the user's home directory
func findConfigFile(env string) (string, error) {
	configFileName := fmt.Sprintf("cascade_config.%s.yaml", env)

	// Check current directory
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("config file %s not found in current directory or home directory", configFileName)
}
