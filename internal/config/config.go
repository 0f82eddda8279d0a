// Package config loads the daemon configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/pkg/logger"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Address returns the host:port listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig selects the persistence backend. Driver is "memory" or
// "postgres"; DSN is required for postgres.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig controls bearer token authentication.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
}

// RateLimitConfig controls per-caller request throttling.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second"`
	Burst             int  `yaml:"burst"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// HarvestConfig tunes the midnight harvest scheduler.
type HarvestConfig struct {
	// Schedule is a cron expression; "off" disables the scheduler.
	Schedule string `yaml:"schedule"`
	Workers  int    `yaml:"workers"`
}

// LoggingConfig mirrors the logger package configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// Config is the top-level daemon configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
	Harvest   HarvestConfig   `yaml:"harvest"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Driver: "memory"},
		Auth:     AuthConfig{Enabled: false},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 50,
			Burst:             100,
		},
		CORS:    CORSConfig{AllowedOrigins: []string{"*"}},
		Harvest: HarvestConfig{Schedule: "@midnight", Workers: 8},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// Load reads a YAML configuration file, fills unset fields with defaults
// and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the file when it exists, otherwise returns defaults
// with environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot produce a working daemon.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("postgres driver requires a dsn")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return fmt.Errorf("auth enabled without a secret")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate limit requires a positive requests_per_second")
	}
	if c.Harvest.Workers < 0 {
		return fmt.Errorf("harvest workers must not be negative")
	}
	return nil
}

// LoggerConfig converts the logging section into the logger package form.
func (c *Config) LoggerConfig() logger.LoggingConfig {
	return logger.LoggingConfig{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		Output:     c.Logging.Output,
		FilePrefix: c.Logging.FilePrefix,
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SOULVAULT_SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SOULVAULT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SOULVAULT_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("SOULVAULT_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("SOULVAULT_AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
		c.Auth.Enabled = true
	}
	if v := os.Getenv("SOULVAULT_HARVEST_SCHEDULE"); v != "" {
		c.Harvest.Schedule = v
	}
	if v := os.Getenv("SOULVAULT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SOULVAULT_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}
