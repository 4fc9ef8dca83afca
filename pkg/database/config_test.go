package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv_RequiresPassword(t *testing.T) {
	t.Setenv("DB_PASSWORD", "")
	_, err := LoadConfigFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PASSWORD")
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "meepleai", cfg.User)
	assert.Equal(t, "meepleai", cfg.Database)
	assert.Equal(t, 25, cfg.MaxOpenConns)
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{
		Host: "db", Port: 5432, User: "u", Password: "p",
		Database: "meepleai", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=db port=5432 user=u password=p dbname=meepleai sslmode=disable",
		cfg.DSN())
}

func TestConfig_ValidatePoolBounds(t *testing.T) {
	cfg := Config{Password: "p", MaxOpenConns: 2, MinIdleConns: 5}
	assert.Error(t, cfg.Validate())

	cfg.MinIdleConns = 1
	assert.NoError(t, cfg.Validate())
}
