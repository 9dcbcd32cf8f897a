package database

import (
	"os"
	"time"

	"github.com/sentinelstream/newsflow/pkg/config"
)

// Config holds database connection and pool configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func defaultPoolConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// LoadConfigFromEnv loads the POSTGRES_* environment contract. Host, database,
// user, and password are required and reported together when absent; the port
// defaults to 5432.
func LoadConfigFromEnv() (Config, error) {
	var missing []string
	requireEnv := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := defaultPoolConfig()
	cfg.Host = requireEnv("POSTGRES_HOST")
	cfg.Database = requireEnv("POSTGRES_DB")
	cfg.User = requireEnv("POSTGRES_USER")
	cfg.Password = requireEnv("POSTGRES_PASSWORD")
	cfg.SSLMode = config.GetEnvOrDefault("POSTGRES_SSLMODE", "disable")

	if len(missing) > 0 {
		return Config{}, &config.MissingEnvError{Names: missing}
	}

	var err error
	if cfg.Port, err = config.IntFromEnv("POSTGRES_PORT", 5432); err != nil {
		return Config{}, err
	}
	if cfg.MaxOpenConns, err = config.IntFromEnv("POSTGRES_MAX_OPEN_CONNS", cfg.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if cfg.MaxIdleConns, err = config.IntFromEnv("POSTGRES_MAX_IDLE_CONNS", cfg.MaxIdleConns); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
