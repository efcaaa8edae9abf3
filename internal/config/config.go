// Package config holds run configuration: region, worker pool size and
// retry budgets, loadable from an optional YAML file with flag overrides
// applied by the CLI layer.
package config

import (
	"fmt"
	"time"
)

// Defaults applied when neither file nor flags set a value.
const (
	DefaultParallelism  = 4
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultMaxDelay     = 15 * time.Second
)

// Retry holds the per-resource retry budget and backoff shape.
type Retry struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Config is the resolved run configuration.
type Config struct {
	Region      string
	Parallelism int
	Retry       Retry
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Parallelism: DefaultParallelism,
		Retry: Retry{
			MaxAttempts:  DefaultMaxAttempts,
			InitialDelay: DefaultInitialDelay,
			MaxDelay:     DefaultMaxDelay,
		},
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("region must be set")
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialDelay <= 0 {
		return fmt.Errorf("retry initial delay must be positive, got %v", c.Retry.InitialDelay)
	}
	if c.Retry.MaxDelay < c.Retry.InitialDelay {
		return fmt.Errorf("retry max delay %v is below initial delay %v", c.Retry.MaxDelay, c.Retry.InitialDelay)
	}
	return nil
}
