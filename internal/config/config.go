// Package config provides configuration loading and management for conecone.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/conecone/internal/fit"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Reconstruction holds the center-search parameters
	Reconstruction fit.ReconstructConfig `yaml:"reconstruction"`

	// Server parameters
	Server struct {
		// Addr is the listen address of the HTTP job server
		Addr string `yaml:"addr"`

		// DataDir is where run records and traces are stored. Empty disables persistence.
		DataDir string `yaml:"dataDir"`
	} `yaml:"server"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Reconstruction = fit.DefaultReconstructConfig()

	cfg.Server.Addr = "localhost:8080"
	cfg.Server.DataDir = "./data"

	cfg.Logging.Level = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Fields absent from the file keep their defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks every section. Reconstruction errors are
// *fit.InvalidConfigurationError values.
func (c *Config) Validate() error {
	if err := c.Reconstruction.Validate(); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return &fit.InvalidConfigurationError{Field: "server.addr", Reason: "cannot be empty"}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &fit.InvalidConfigurationError{
			Field:  "logging.level",
			Reason: fmt.Sprintf("unknown level %q", c.Logging.Level),
		}
	}
	return nil
}
