package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BOOTSTRAP_SERVERS", "AUTO_OFFSET_RESET", "CURSOR_MODE",
		"DB_MIN_POOL_SIZE", "DB_MAX_POOL_SIZE",
	} {
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9093"}, cfg.BootstrapServers)
	assert.Equal(t, "latest", cfg.AutoOffsetReset)
	assert.Equal(t, "store", cfg.CursorMode)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, "config/topics.yaml", cfg.TopicRegistryFile)
}

func TestLoad_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOOTSTRAP_SERVERS", "broker-1:9092,broker-2:9092")
	t.Setenv("CURSOR_MODE", "bus")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.BootstrapServers)
	assert.Equal(t, "bus", cfg.CursorMode)
}

func TestValidate_RejectsUnknownOffsetReset(t *testing.T) {
	cfg := &Config{
		BootstrapServers: []string{"localhost:9093"},
		AutoOffsetReset:  "midnight",
		CursorMode:       "store",
		DBMinPoolSize:    5,
		DBMaxPoolSize:    100,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTO_OFFSET_RESET")
}

func TestValidate_RejectsUnknownCursorMode(t *testing.T) {
	cfg := &Config{
		BootstrapServers: []string{"localhost:9093"},
		AutoOffsetReset:  "latest",
		CursorMode:       "somewhere",
		DBMinPoolSize:    5,
		DBMaxPoolSize:    100,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CURSOR_MODE")
}

func TestValidate_RejectsBadPoolSizes(t *testing.T) {
	cfg := &Config{
		BootstrapServers: []string{"localhost:9093"},
		AutoOffsetReset:  "latest",
		CursorMode:       "store",
		DBMinPoolSize:    10,
		DBMaxPoolSize:    5,
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestDSN(t *testing.T) {
	cfg := &Config{
		DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "5432",
		DBName: "audit", DBSSLMode: "disable",
	}
	assert.Equal(t, "postgres://u:p@h:5432/audit?sslmode=disable", cfg.DSN())
}
