// Package config loads service configuration from a YAML file with
// ${ENV:default} placeholders, falling back to defaults when no file exists.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"crmflow/pkg/logger"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Logger   logger.Config  `yaml:"logger"`
	Cache    CacheConfig    `yaml:"cache"`
	Guards   GuardsConfig   `yaml:"guards"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrateOnStart  bool          `yaml:"migrate_on_start"`
}

type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret"`
	Issuer           string        `yaml:"issuer"`
	AccessTokenTTL   time.Duration `yaml:"access_token_ttl"`
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	LockDuration     time.Duration `yaml:"lock_duration"`
}

// CacheConfig selects the activity counter store.
type CacheConfig struct {
	Type      string        `yaml:"type"` // memory | redis
	Size      int           `yaml:"size"`
	TTL       time.Duration `yaml:"ttl"`
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
	RedisPass string        `yaml:"redis_password"`
	KeyPrefix string        `yaml:"key_prefix"`
}

type GuardsConfig struct {
	BulkMaxItems         int           `yaml:"bulk_max_items"`
	SuspiciousWindow     time.Duration `yaml:"suspicious_window"`
	SuspiciousThreshold  int           `yaml:"suspicious_threshold"`
	RateLimitWindow      time.Duration `yaml:"rate_limit_window"`
	RateLimitMaxRequests int           `yaml:"rate_limit_max_requests"`
	EventWriteTimeout    time.Duration `yaml:"event_write_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration usable for local development.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
		},
		Auth: AuthConfig{
			JWTSecret:        "change-me-in-production",
			Issuer:           "crmflow",
			AccessTokenTTL:   12 * time.Hour,
			MaxLoginAttempts: 5,
			LockDuration:     15 * time.Minute,
		},
		Logger: logger.Config{Level: "info"},
		Cache: CacheConfig{
			Type:      "memory",
			Size:      10000,
			TTL:       time.Hour,
			KeyPrefix: "crmflow:",
		},
		Guards: GuardsConfig{
			BulkMaxItems:         100,
			SuspiciousWindow:     15 * time.Minute,
			SuspiciousThreshold:  10,
			RateLimitWindow:      time.Minute,
			RateLimitMaxRequests: 300,
			EventWriteTimeout:    5 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads .env (if present) and the YAML file at path. A missing file
// yields the defaults; values present in the file override them.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		return &cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(resolveEnv(data), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, cfg.Validate()
}

// Validate checks values the service cannot start without.
func (c *Config) Validate() error {
	if c.Guards.BulkMaxItems <= 0 {
		return errors.New("guards.bulk_max_items must be positive")
	}
	switch c.Cache.Type {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return errors.New("cache.redis_addr is required for redis cache")
		}
	default:
		return fmt.Errorf("unknown cache.type %q", c.Cache.Type)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// resolveEnv replaces ${KEY:default} placeholders with environment values.
func resolveEnv(content []byte) []byte {
	return envPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		m := envPattern.FindSubmatch(match)
		if value, ok := os.LookupEnv(string(m[1])); ok {
			return []byte(value)
		}
		return m[2]
	})
}
