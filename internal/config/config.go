// Package config loads service settings from defaults, an optional YAML
// file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	BaseURL  string `yaml:"base_url"`

	StoreDriver string `yaml:"store_driver"`
	DatabaseDSN string `yaml:"database_dsn"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	CacheTTL time.Duration `yaml:"cache_ttl"`
	LockTTL  time.Duration `yaml:"lock_ttl"`

	RateLimit struct {
		Limit  int           `yaml:"limit"`
		Window time.Duration `yaml:"window"`
	} `yaml:"rate_limit"`

	Create struct {
		Retries int           `yaml:"retries"`
		Backoff time.Duration `yaml:"backoff"`
	} `yaml:"create"`

	Clicks struct {
		Workers   int    `yaml:"workers"`
		QueueSize int    `yaml:"queue_size"`
		Mode      string `yaml:"mode"`
	} `yaml:"clicks"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	cfg := &Config{
		HTTPAddr:    ":8080",
		StoreDriver: "postgres",
		CacheTTL:    10 * time.Minute,
		LockTTL:     10 * time.Second,
	}
	cfg.Redis.Addr = "localhost:6379"
	cfg.RateLimit.Limit = 60
	cfg.RateLimit.Window = time.Minute
	cfg.Create.Retries = 3
	cfg.Create.Backoff = 50 * time.Millisecond
	cfg.Clicks.Workers = 4
	cfg.Clicks.QueueSize = 1024
	cfg.Clicks.Mode = "lossy"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Load reads .env if present, then the YAML file named by CONFIG_FILE if
// set, then individual environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load() // missing .env is fine

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.BaseURL, "BASE_URL")
	setString(&c.StoreDriver, "STORE_DRIVER")
	setString(&c.DatabaseDSN, "DATABASE_DSN")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Clicks.Mode, "CLICK_COUNT_MODE")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	return errors.Join(
		setInt(&c.Redis.DB, "REDIS_DB"),
		setInt(&c.RateLimit.Limit, "RATE_LIMIT"),
		setInt(&c.Create.Retries, "CREATE_RETRIES"),
		setInt(&c.Clicks.Workers, "CLICK_WORKERS"),
		setInt(&c.Clicks.QueueSize, "CLICK_QUEUE_SIZE"),
		setDuration(&c.CacheTTL, "CACHE_TTL"),
		setDuration(&c.LockTTL, "LOCK_TTL"),
		setDuration(&c.RateLimit.Window, "RATE_LIMIT_WINDOW"),
		setDuration(&c.Create.Backoff, "CREATE_RETRY_BACKOFF"),
	)
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN not set"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("REDIS_ADDR not set"))
	}
	switch c.Clicks.Mode {
	case "lossy", "atomic":
	default:
		errs = append(errs, fmt.Errorf("unknown click count mode %q", c.Clicks.Mode))
	}
	if c.CacheTTL <= 0 || c.LockTTL <= 0 || c.RateLimit.Window < time.Second {
		errs = append(errs, errors.New("cache ttl and lock ttl must be positive, rate limit window at least 1s"))
	}
	if c.RateLimit.Limit < 1 || c.Create.Retries < 1 || c.Clicks.Workers < 1 || c.Clicks.QueueSize < 1 {
		errs = append(errs, errors.New("rate limit, retries, click workers and click queue size must be at least 1"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
