package pool

import (
	"os"
	"strconv"
	"time"
)

const (
	// DefaultMaxSize matches the framework default of four connections per process.
	DefaultMaxSize      = 4
	DefaultWaitInterval = 5 * time.Second
	DefaultProbeTimeout = 5 * time.Second
)

// Config holds the sizing and timing knobs of a Pool
type Config struct {
	// MaxSize is the hard cap on live plus in-flight connections.
	MaxSize int
	// Reuse is the capacity of the idle buffer. Zero means MaxSize.
	Reuse int
	// WaitInterval bounds a single wait for a released connection before
	// the capacity check is re-evaluated.
	WaitInterval time.Duration
	// ProbeTimeout bounds a single health probe.
	ProbeTimeout time.Duration
}

// DefaultConfig returns the default pool configuration
func DefaultConfig() Config {
	return Config{
		MaxSize:      DefaultMaxSize,
		Reuse:        DefaultMaxSize,
		WaitInterval: DefaultWaitInterval,
		ProbeTimeout: DefaultProbeTimeout,
	}
}

// LoadConfig loads the pool configuration from environment variables.
// A malformed value is an error rather than falling back to the default.
func LoadConfig() (Config, error) {
	config := DefaultConfig()
	reuseSet := false

	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return config, configError("POOL_MAX_CONNS: expected integer, got %q", v)
		}
		config.MaxSize = n
	}

	if v := os.Getenv("POOL_REUSE_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return config, configError("POOL_REUSE_CONNS: expected integer, got %q", v)
		}
		config.Reuse = n
		reuseSet = true
	}
	if !reuseSet {
		config.Reuse = config.MaxSize
	}

	if v := os.Getenv("POOL_WAIT_INTERVAL_MS"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return config, configError("POOL_WAIT_INTERVAL_MS: expected integer, got %q", v)
		}
		config.WaitInterval = time.Duration(ms) * time.Millisecond
	}

	if v := os.Getenv("POOL_PROBE_TIMEOUT_MS"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return config, configError("POOL_PROBE_TIMEOUT_MS: expected integer, got %q", v)
		}
		config.ProbeTimeout = time.Duration(ms) * time.Millisecond
	}

	return config, config.Validate()
}

// Validate reports whether the configuration can build a pool
func (c Config) Validate() error {
	if c.MaxSize < 1 {
		return configError("max size must be at least 1, got %d", c.MaxSize)
	}
	if c.Reuse < 0 {
		return configError("reuse must not be negative, got %d", c.Reuse)
	}
	if c.WaitInterval < 0 {
		return configError("wait interval must not be negative, got %s", c.WaitInterval)
	}
	if c.ProbeTimeout < 0 {
		return configError("probe timeout must not be negative, got %s", c.ProbeTimeout)
	}
	return nil
}

// withDefaults fills zero values after validation
func (c Config) withDefaults() Config {
	if c.Reuse == 0 {
		c.Reuse = c.MaxSize
	}
	if c.WaitInterval == 0 {
		c.WaitInterval = DefaultWaitInterval
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	return c
}
