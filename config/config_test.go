package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LIBRARY_API_BASE_URL", "VITE_API_BASE_URL", "LIBRARY_LOG_LEVEL", "LIBRARY_HTTP_TIMEOUT",
		"LIBRARY_CACHE_PATH", "LIBRARY_CACHE_KEEP_UNUSED", "LIBRARY_REDIS_URL",
		"LIBRARY_NOTIFY_HISTORY", "LIBRARY_PAGE_LIMIT",
	} {
		if old, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, old) })
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, FallbackAPIBaseURL, cfg.APIBaseURL)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 60*time.Second, cfg.CacheKeepUnused)
	assert.Equal(t, 20, cfg.NotifyHistory)
	assert.Equal(t, 10, cfg.PageLimit)
	assert.Empty(t, cfg.CachePath)
	assert.Empty(t, cfg.RedisURL)
}

func TestEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("LIBRARY_API_BASE_URL", "http://localhost:5000/api")
	t.Setenv("LIBRARY_LOG_LEVEL", "DEBUG")
	t.Setenv("LIBRARY_HTTP_TIMEOUT", "5s")
	t.Setenv("LIBRARY_PAGE_LIMIT", "25")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/api", cfg.APIBaseURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 25, cfg.PageLimit)
}

func TestViteAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("VITE_API_BASE_URL", "https://example.org/api")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/api", cfg.APIBaseURL)
}

func TestDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LIBRARY_NOTIFY_HISTORY=7\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("LIBRARY_NOTIFY_HISTORY") })

	require.NoError(t, LoadDotEnv(path))
	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.NotifyHistory)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			APIBaseURL:    FallbackAPIBaseURL,
			LogLevel:      "warn",
			HTTPTimeout:   time.Second,
			NotifyHistory: 1,
			PageLimit:     10,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative url", func(c *Config) { c.APIBaseURL = "/api" }},
		{"ftp url", func(c *Config) { c.APIBaseURL = "ftp://example.org" }},
		{"unknown level", func(c *Config) { c.LogLevel = "verbose" }},
		{"zero timeout", func(c *Config) { c.HTTPTimeout = 0 }},
		{"negative keep", func(c *Config) { c.CacheKeepUnused = -time.Second }},
		{"no history", func(c *Config) { c.NotifyHistory = 0 }},
		{"page too large", func(c *Config) { c.PageLimit = 101 }},
	}

	ok := base()
	require.NoError(t, ok.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}
