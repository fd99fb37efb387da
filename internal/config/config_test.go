package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/shortlink")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, "lossy", cfg.Clicks.Mode)
	assert.Equal(t, 3, cfg.Create.Retries)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("RATE_LIMIT", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("CLICK_COUNT_MODE", "atomic")
	t.Setenv("LOCK_TTL", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 5, cfg.RateLimit.Limit)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, "atomic", cfg.Clicks.Mode)
	assert.Equal(t, 3*time.Second, cfg.LockTTL)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store_driver: memory
base_url: https://sho.rt
cache_ttl: 5m
rate_limit:
  limit: 7
  window: 10s
clicks:
  workers: 2
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RATE_LIMIT", "9")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://sho.rt", cfg.BaseURL)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 9, cfg.RateLimit.Limit, "env wins over file")
	assert.Equal(t, 2, cfg.Clicks.Workers)
	assert.Equal(t, 1024, cfg.Clicks.QueueSize, "unset keys keep defaults")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "postgres without dsn", env: map[string]string{"STORE_DRIVER": "postgres", "DATABASE_DSN": ""}},
		{name: "unknown driver", env: map[string]string{"STORE_DRIVER": "mysql"}},
		{name: "bad int", env: map[string]string{"STORE_DRIVER": "memory", "RATE_LIMIT": "many"}},
		{name: "bad duration", env: map[string]string{"STORE_DRIVER": "memory", "LOCK_TTL": "soon"}},
		{name: "bad click mode", env: map[string]string{"STORE_DRIVER": "memory", "CLICK_COUNT_MODE": "exact"}},
		{name: "zero workers", env: map[string]string{"STORE_DRIVER": "memory", "CLICK_WORKERS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
