package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Session backends understood by the client.
const (
	SessionBackendMemory   = "memory"
	SessionBackendFile     = "file"
	SessionBackendPostgres = "postgres"
)

// Config captures the runtime configuration for the EduStream client.
type Config struct {
	APIURL         string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	MaxUploadBytes int64
	RateLimit      float64
	RateBurst      int

	Catalog     CatalogConfig
	Session     SessionConfig
	ObjectStore ObjectStoreConfig
}

// CatalogConfig controls the catalog query cache.
type CatalogConfig struct {
	StaleTime      time.Duration
	CacheSize      int
	Retries        int
	PerPage        int
	SearchDebounce time.Duration
}

// SessionConfig selects where the signed-in identity and credential are kept.
type SessionConfig struct {
	Backend     string
	Path        string
	Key         []byte
	DatabaseURL string
	Profile     string
}

// ObjectStoreConfig describes the S3-compatible store upload sources may be read from.
type ObjectStoreConfig struct {
	Region   string
	Endpoint string
}

// Load reads configuration from environment variables, applying defaults that match
// the platform's public API while allowing overrides through environment variables.
func Load() (Config, error) {
	cfg := Config{
		APIURL:    strings.TrimRight(getString("EDUSTREAM_API_URL", "http://localhost:8000"), "/"),
		LogLevel:  strings.ToLower(getString("EDUSTREAM_LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getString("EDUSTREAM_LOG_FORMAT", "json")),
		Session: SessionConfig{
			Backend:     strings.ToLower(getString("EDUSTREAM_SESSION_BACKEND", SessionBackendFile)),
			Path:        getString("EDUSTREAM_SESSION_PATH", defaultSessionPath()),
			DatabaseURL: getString("EDUSTREAM_DATABASE_URL", ""),
			Profile:     getString("EDUSTREAM_SESSION_PROFILE", "default"),
		},
		ObjectStore: ObjectStoreConfig{
			Region:   getString("EDUSTREAM_S3_REGION", "us-east-1"),
			Endpoint: getString("EDUSTREAM_S3_ENDPOINT", ""),
		},
	}

	var err error
	if cfg.RequestTimeout, err = getDuration("EDUSTREAM_REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.UploadTimeout, err = getDuration("EDUSTREAM_UPLOAD_TIMEOUT", 10*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.MaxUploadBytes, err = getInt64("EDUSTREAM_MAX_UPLOAD_BYTES", 500*1024*1024); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit, err = getFloat("EDUSTREAM_RATE_LIMIT", 10); err != nil {
		return Config{}, err
	}
	if cfg.RateBurst, err = getInt("EDUSTREAM_RATE_BURST", 20); err != nil {
		return Config{}, err
	}
	if cfg.Catalog.StaleTime, err = getDuration("EDUSTREAM_CATALOG_STALE_TIME", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Catalog.CacheSize, err = getInt("EDUSTREAM_CATALOG_CACHE_SIZE", 256); err != nil {
		return Config{}, err
	}
	if cfg.Catalog.Retries, err = getInt("EDUSTREAM_CATALOG_RETRIES", 1); err != nil {
		return Config{}, err
	}
	if cfg.Catalog.PerPage, err = getInt("EDUSTREAM_PER_PAGE", 12); err != nil {
		return Config{}, err
	}
	if cfg.Catalog.SearchDebounce, err = getDuration("EDUSTREAM_SEARCH_DEBOUNCE", 300*time.Millisecond); err != nil {
		return Config{}, err
	}

	if raw := getString("EDUSTREAM_SESSION_KEY", ""); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Config{}, fmt.Errorf("EDUSTREAM_SESSION_KEY: %w", err)
		}
		if len(key) != 32 {
			return Config{}, fmt.Errorf("EDUSTREAM_SESSION_KEY: expected 32 bytes, got %d", len(key))
		}
		cfg.Session.Key = key
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("EDUSTREAM_LOG_LEVEL: unsupported level %q", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("EDUSTREAM_LOG_FORMAT: unsupported format %q", c.LogFormat)
	}
	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendFile:
	case SessionBackendPostgres:
		if strings.TrimSpace(c.Session.DatabaseURL) == "" {
			return fmt.Errorf("EDUSTREAM_DATABASE_URL: required for the %s session backend", SessionBackendPostgres)
		}
	default:
		return fmt.Errorf("EDUSTREAM_SESSION_BACKEND: unsupported backend %q", c.Session.Backend)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("EDUSTREAM_MAX_UPLOAD_BYTES: must be positive")
	}
	if c.Catalog.CacheSize <= 0 {
		return fmt.Errorf("EDUSTREAM_CATALOG_CACHE_SIZE: must be positive")
	}
	if c.Catalog.Retries < 0 {
		return fmt.Errorf("EDUSTREAM_CATALOG_RETRIES: must not be negative")
	}
	if c.Catalog.PerPage <= 0 {
		return fmt.Errorf("EDUSTREAM_PER_PAGE: must be positive")
	}
	return nil
}

func defaultSessionPath() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "edustream", "session.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".edustream", "session.json")
	}
	return filepath.Join(home, ".config", "edustream", "session.json")
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return i, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return i, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, value)
	}
	return f, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, value)
	}
	return d, nil
}
