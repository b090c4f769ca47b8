// Package config loads the pgpoold daemon configuration from a YAML or TOML
// file and applies environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/guileen/pgpool/logger"
	"github.com/guileen/pgpool/pool"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

const DefaultListen = ":8080"

// Config is the daemon configuration
type Config struct {
	Listen   string         `yaml:"listen" toml:"listen"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Pool     PoolConfig     `yaml:"pool" toml:"pool"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// DatabaseConfig selects the driver and the server to pool connections to
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // postgres | mysql | sqlite
	DSN    string `yaml:"dsn" toml:"dsn"`
}

// PoolConfig mirrors pool.Config in file form
type PoolConfig struct {
	MaxConns     int      `yaml:"max_conns" toml:"max_conns"`
	ReuseConns   int      `yaml:"reuse_conns" toml:"reuse_conns"` // zero follows MaxConns
	WaitInterval Duration `yaml:"wait_interval" toml:"wait_interval"`
	ProbeTimeout Duration `yaml:"probe_timeout" toml:"probe_timeout"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Duration is a time.Duration written as "5s" or "250ms" in config files
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	p := pool.DefaultConfig()
	return &Config{
		Listen: DefaultListen,
		Database: DatabaseConfig{
			Driver: DriverPostgres,
		},
		Pool: PoolConfig{
			MaxConns:     p.MaxSize,
			WaitInterval: Duration(p.WaitInterval),
			ProbeTimeout: Duration(p.ProbeTimeout),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the file at path, if any, then applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		if err := loadFromFile(path, config); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// loadFromFile decodes YAML or TOML depending on the file extension
func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".toml":
		return toml.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
}

func applyEnvOverrides(config *Config) error {
	if listen := os.Getenv("PGPOOL_LISTEN"); listen != "" {
		config.Listen = listen
	}
	if driver := os.Getenv("PGPOOL_DRIVER"); driver != "" {
		config.Database.Driver = driver
	}
	if dsn := os.Getenv("PGPOOL_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if err := envInt("POOL_MAX_CONNS", &config.Pool.MaxConns); err != nil {
		return err
	}
	return envInt("POOL_REUSE_CONNS", &config.Pool.ReuseConns)
}

func envInt(key string, dst *int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%w: %s must be an integer, got %q", pool.ErrInvalidConfig, key, s)
	}
	*dst = v
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address cannot be empty")
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return c.PoolConfig().Validate()
}

// PoolConfig converts the pool section to pool.Config
func (c *Config) PoolConfig() pool.Config {
	return pool.Config{
		MaxSize:      c.Pool.MaxConns,
		Reuse:        c.reuseConns(),
		WaitInterval: time.Duration(c.Pool.WaitInterval),
		ProbeTimeout: time.Duration(c.Pool.ProbeTimeout),
	}
}

func (c *Config) reuseConns() int {
	if c.Pool.ReuseConns == 0 {
		return c.Pool.MaxConns
	}
	return c.Pool.ReuseConns
}

// LoggerConfig converts the logging section to logger.Config
func (c *Config) LoggerConfig() logger.Config {
	config := logger.DefaultConfig()
	if level, err := logger.ParseLevel(c.Logging.Level); err == nil {
		config.Level = level
	}
	if c.Logging.Format == "text" {
		config.Format = "text"
	}
	return config
}
