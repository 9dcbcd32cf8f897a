package database

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelstream/newsflow/pkg/config"
)

func clearPostgresEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_DB", "POSTGRES_USER",
		"POSTGRES_PASSWORD", "POSTGRES_SSLMODE",
		"POSTGRES_MAX_OPEN_CONNS", "POSTGRES_MAX_IDLE_CONNS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigFromEnvReportsAllMissingVars(t *testing.T) {
	clearPostgresEnv(t)

	_, err := LoadConfigFromEnv()
	require.Error(t, err)

	var missing *config.MissingEnvError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"POSTGRES_HOST", "POSTGRES_DB", "POSTGRES_USER", "POSTGRES_PASSWORD"}, missing.Names)
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	clearPostgresEnv(t)
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_DB", "newsflow")
	t.Setenv("POSTGRES_USER", "newsflow")
	t.Setenv("POSTGRES_PASSWORD", "secret")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "newsflow", cfg.Database)
	assert.Equal(t, "newsflow", cfg.User)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxIdleTime)
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	clearPostgresEnv(t)
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_DB", "newsflow")
	t.Setenv("POSTGRES_USER", "newsflow")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_PORT", "6432")
	t.Setenv("POSTGRES_SSLMODE", "require")
	t.Setenv("POSTGRES_MAX_OPEN_CONNS", "25")
	t.Setenv("POSTGRES_MAX_IDLE_CONNS", "8")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 6432, cfg.Port)
	assert.Equal(t, "require", cfg.SSLMode)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 8, cfg.MaxIdleConns)
}

func TestLoadConfigFromEnvRejectsBadPort(t *testing.T) {
	clearPostgresEnv(t)
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_DB", "newsflow")
	t.Setenv("POSTGRES_USER", "newsflow")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_PORT", "not-a-port")

	_, err := LoadConfigFromEnv()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidEnv)
	assert.Contains(t, err.Error(), "POSTGRES_PORT")
}
