// Package config loads gateway configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Identity IdentityConfig `yaml:"identity"`
	Storage  StorageConfig  `yaml:"storage"`
	Boot     BootConfig     `yaml:"boot"`
	Dev      DevConfig      `yaml:"dev"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	ReadTimeoutSecs    int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSecs   int    `yaml:"write_timeout_seconds"`
	RateLimitPerSecond int    `yaml:"rate_limit_per_second"`
	RateLimitBurst     int    `yaml:"rate_limit_burst"`
}

// IdentityConfig points at the remote who-am-I endpoint.
type IdentityConfig struct {
	Endpoint    string `yaml:"endpoint"`
	JWTSecret   string `yaml:"jwt_secret"`
	TimeoutSecs int    `yaml:"timeout_seconds"`
}

// StorageConfig selects the credential store backend.
type StorageConfig struct {
	// Driver is one of "memory", "postgres", "redis".
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	RedisAddr    string `yaml:"redis_addr"`
	RedisDB      int    `yaml:"redis_db"`
	RedisTTLSecs int    `yaml:"redis_ttl_seconds"`
}

// BootConfig tunes the boot engine.
type BootConfig struct {
	DefaultCategory  string `yaml:"default_category"`
	SweepMaxIdleSecs int    `yaml:"sweep_max_idle_seconds"`
	SweepSchedule    string `yaml:"sweep_schedule"`
}

// DevConfig carries the explicit dev-mode overrides.
type DevConfig struct {
	SkipRemoteValidation bool   `yaml:"skip_remote_validation"`
	MockProfilePath      string `yaml:"mock_profile_path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the configuration file at path, applies environment overrides,
// and validates the result. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ReadTimeoutSecs:    15,
			WriteTimeoutSecs:   30,
			RateLimitPerSecond: 5,
			RateLimitBurst:     10,
		},
		Identity: IdentityConfig{TimeoutSecs: 10},
		Storage:  StorageConfig{Driver: "memory"},
		Boot: BootConfig{
			SweepMaxIdleSecs: 3600,
			SweepSchedule:    "@every 10m",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "GATEWAY_HOST")
	setInt(&cfg.Server.Port, "GATEWAY_PORT")
	setString(&cfg.Identity.Endpoint, "IDENTITY_ENDPOINT")
	setString(&cfg.Identity.JWTSecret, "IDENTITY_JWT_SECRET")
	setInt(&cfg.Identity.TimeoutSecs, "IDENTITY_TIMEOUT_SECONDS")
	setString(&cfg.Storage.Driver, "STORAGE_DRIVER")
	setString(&cfg.Storage.DSN, "STORAGE_DSN")
	setString(&cfg.Storage.RedisAddr, "STORAGE_REDIS_ADDR")
	setInt(&cfg.Storage.RedisDB, "STORAGE_REDIS_DB")
	setString(&cfg.Boot.DefaultCategory, "BOOT_DEFAULT_CATEGORY")
	setString(&cfg.Boot.SweepSchedule, "BOOT_SWEEP_SCHEDULE")
	setBool(&cfg.Dev.SkipRemoteValidation, "DEV_SKIP_REMOTE_VALIDATION")
	setString(&cfg.Dev.MockProfilePath, "DEV_MOCK_PROFILE_PATH")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage dsn is required for postgres driver")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("redis address is required for redis driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Identity.Endpoint == "" && !c.Dev.SkipRemoteValidation {
		return fmt.Errorf("identity endpoint is required")
	}
	return nil
}

// IdentityTimeout returns the identity call timeout as a duration.
func (c *Config) IdentityTimeout() time.Duration {
	return time.Duration(c.Identity.TimeoutSecs) * time.Second
}

// SweepMaxIdle returns the orchestrator idle cutoff as a duration.
func (c *Config) SweepMaxIdle() time.Duration {
	return time.Duration(c.Boot.SweepMaxIdleSecs) * time.Second
}

// RedisTTL returns the credential TTL for the redis store.
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Storage.RedisTTLSecs) * time.Second
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
