// Package config loads client settings from the environment, an optional
// .env file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FallbackAPIBaseURL is used when no base URL is configured.
const FallbackAPIBaseURL = "https://fahimxgg-l2-ass-3-db.vercel.app/api"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Viper keys. Flags bind to the same keys.
const (
	KeyAPIBaseURL      = "api_base_url"
	KeyLogLevel        = "log_level"
	KeyHTTPTimeout     = "http_timeout"
	KeyCachePath       = "cache_path"
	KeyCacheKeepUnused = "cache_keep_unused"
	KeyRedisURL        = "redis_url"
	KeyNotifyHistory   = "notify_history"
	KeyPageLimit       = "page_limit"
)

type Config struct {
	APIBaseURL      string
	LogLevel        string
	HTTPTimeout     time.Duration
	CachePath       string
	CacheKeepUnused time.Duration
	RedisURL        string
	NotifyHistory   int
	PageLimit       int
}

// New returns a viper instance bound to the LIBRARY_* environment with
// defaults applied. VITE_API_BASE_URL is honoured as an alias for the base URL.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyAPIBaseURL, FallbackAPIBaseURL)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyHTTPTimeout, "30s")
	v.SetDefault(KeyCachePath, "")
	v.SetDefault(KeyCacheKeepUnused, "60s")
	v.SetDefault(KeyRedisURL, "")
	v.SetDefault(KeyNotifyHistory, 20)
	v.SetDefault(KeyPageLimit, 10)

	_ = v.BindEnv(KeyAPIBaseURL, "LIBRARY_API_BASE_URL", "VITE_API_BASE_URL")
	for _, key := range []string{KeyLogLevel, KeyHTTPTimeout, KeyCachePath, KeyCacheKeepUnused, KeyRedisURL, KeyNotifyHistory, KeyPageLimit} {
		_ = v.BindEnv(key, "LIBRARY_"+strings.ToUpper(key))
	}
	return v
}

// LoadDotEnv reads files into the process environment without overriding
// variables that are already set. With no files it reads ./.env if present.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		APIBaseURL:      strings.TrimSpace(v.GetString(KeyAPIBaseURL)),
		LogLevel:        strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		HTTPTimeout:     v.GetDuration(KeyHTTPTimeout),
		CachePath:       strings.TrimSpace(v.GetString(KeyCachePath)),
		CacheKeepUnused: v.GetDuration(KeyCacheKeepUnused),
		RedisURL:        strings.TrimSpace(v.GetString(KeyRedisURL)),
		NotifyHistory:   v.GetInt(KeyNotifyHistory),
		PageLimit:       v.GetInt(KeyPageLimit),
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = FallbackAPIBaseURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: LIBRARY_API_BASE_URL must be an absolute http(s) URL, got %q", ErrInvalid, c.APIBaseURL)
	}

	if _, ok := levels[c.LogLevel]; !ok {
		return fmt.Errorf("%w: LIBRARY_LOG_LEVEL must be one of debug, info, warn, error", ErrInvalid)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%w: LIBRARY_HTTP_TIMEOUT must be positive", ErrInvalid)
	}

	if c.CacheKeepUnused < 0 {
		return fmt.Errorf("%w: LIBRARY_CACHE_KEEP_UNUSED cannot be negative", ErrInvalid)
	}

	if c.NotifyHistory < 1 {
		return fmt.Errorf("%w: LIBRARY_NOTIFY_HISTORY must be at least 1", ErrInvalid)
	}

	if c.PageLimit < 1 || c.PageLimit > 100 {
		return fmt.Errorf("%w: LIBRARY_PAGE_LIMIT must be between 1 and 100", ErrInvalid)
	}

	return nil
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	return levels[c.LogLevel]
}
