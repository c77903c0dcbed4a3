package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile overlays the YAML document at path on cfg. Keys absent from the
// document keep their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// LoadWithFile loads the environment configuration and applies CONFIG_FILE
// when it is set.
func LoadWithFile() (*Config, error) {
	cfg := Load()
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return cfg, nil
	}
	if err := LoadFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}
