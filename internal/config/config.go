package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"identity-reconciliation/internal/database"
)

// Config is the runtime configuration of the service.
type Config struct {
	Port string

	DatabaseURL        string
	DBDriver           string
	DBMaxOpenConns     int
	SlowQueryThreshold time.Duration

	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration

	// SeedExample inserts one example contact into an empty store at startup.
	SeedExample bool

	// AMQPURL enables event publishing when set.
	AMQPURL      string
	AMQPExchange string

	Debug bool
}

// Addr is the listen address.
func (c Config) Addr() string { return ":" + c.Port }

// Load reads a .env file if present, then builds the config from the
// environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:         envOr("PORT", "8080"),
		DatabaseURL:  envOr("DATABASE_URL", "./bitespeed.db"),
		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: envOr("AMQP_EXCHANGE", "identity.events"),
	}

	var err error
	if cfg.DBMaxOpenConns, err = intEnv("DB_MAX_OPEN_CONNS", 10); err != nil {
		return Config{}, err
	}
	if cfg.RetryAttempts, err = intEnv("RETRY_ATTEMPTS", 3); err != nil {
		return Config{}, err
	}
	if cfg.SlowQueryThreshold, err = durationEnv("SLOW_QUERY_THRESHOLD", 200*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RetryDelay, err = durationEnv("RETRY_DELAY", 25*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.SeedExample, err = boolEnv("SEED_EXAMPLE", false); err != nil {
		return Config{}, err
	}
	if cfg.Debug, err = boolEnv("DEBUG", false); err != nil {
		return Config{}, err
	}

	cfg.DBDriver = os.Getenv("DB_DRIVER")
	if cfg.DBDriver == "" {
		cfg.DBDriver = inferDriver(cfg.DatabaseURL)
	}
	if _, err := database.DialectFor(cfg.DBDriver); err != nil {
		return Config{}, fmt.Errorf("config: DB_DRIVER: %w", err)
	}
	return cfg, nil
}

// inferDriver picks postgres for postgres URLs and SQLite for anything else,
// which is treated as a file path.
func inferDriver(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return database.DriverPostgres
	}
	return database.DriverSQLite
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("config: %s must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("config: %s must be a non-negative duration, got %q", key, v)
	}
	return d, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s must be a boolean, got %q", key, v)
	}
	return b, nil
}
