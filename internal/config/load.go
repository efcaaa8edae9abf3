package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape of the config file. Durations are written
// as Go duration strings ("500ms", "15s").
type fileConfig struct {
	Region      string `yaml:"region"`
	Parallelism int    `yaml:"parallelism"`
	Retry       struct {
		MaxAttempts  int    `yaml:"max_attempts"`
		InitialDelay string `yaml:"initial_delay"`
		MaxDelay     string `yaml:"max_delay"`
	} `yaml:"retry"`
}

// LoadFile reads a YAML config file on top of the defaults. Values absent
// from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	cfg := Default()
	if raw.Region != "" {
		cfg.Region = raw.Region
	}
	if raw.Parallelism != 0 {
		cfg.Parallelism = raw.Parallelism
	}
	if raw.Retry.MaxAttempts != 0 {
		cfg.Retry.MaxAttempts = raw.Retry.MaxAttempts
	}
	if raw.Retry.InitialDelay != "" {
		d, err := time.ParseDuration(raw.Retry.InitialDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid retry initial_delay %q: %w", raw.Retry.InitialDelay, err)
		}
		cfg.Retry.InitialDelay = d
	}
	if raw.Retry.MaxDelay != "" {
		d, err := time.ParseDuration(raw.Retry.MaxDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid retry max_delay %q: %w", raw.Retry.MaxDelay, err)
		}
		cfg.Retry.MaxDelay = d
	}
	return cfg, nil
}
