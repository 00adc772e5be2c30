// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Lock modes.
const (
	LockNone  = "none"
	LockLocal = "local"
	LockRedis = "redis"
)

// Notification channels that can be the default.
const (
	NotifyEmail  = "email"
	NotifyStream = "stream"
)

// Log formats.
const (
	LogJSON    = "json"
	LogConsole = "console"
)

// Config is the full service configuration.
type Config struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	StoreDriver     string        `env:"STORE_DRIVER" envDefault:"memory"`
	DBURL           string        `env:"DB_URL"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	LockMode        string        `env:"LOCK_MODE" envDefault:"local"`
	LockTTL         time.Duration `env:"LOCK_TTL" envDefault:"10s"`
	NotifyDefault   string        `env:"NOTIFY_DEFAULT" envDefault:"email"`
	NotifyStream    string        `env:"NOTIFY_STREAM" envDefault:"notifications"`
	CacheTTL        time.Duration `env:"CACHE_TTL" envDefault:"0s"`
	IdempotencyTTL  time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads envFile when it exists, then the process environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enum values and settings that depend on each other.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DBURL == "" {
			errs = append(errs, errors.New("DB_URL is required when STORE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	switch c.LockMode {
	case LockNone, LockLocal:
	case LockRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when LOCK_MODE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LOCK_MODE %q", c.LockMode))
	}

	switch c.NotifyDefault {
	case NotifyEmail:
	case NotifyStream:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when NOTIFY_DEFAULT=stream"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFY_DEFAULT %q", c.NotifyDefault))
	}

	if c.CacheTTL > 0 && c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required when CACHE_TTL is set"))
	}

	switch c.LogFormat {
	case LogJSON, LogConsole:
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}

	return errors.Join(errs...)
}

// RedisEnabled reports whether a Redis server is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}
