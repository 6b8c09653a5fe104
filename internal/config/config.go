// Package config loads configuration from environment variables.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all client configuration.
type Config struct {
	// Remote storage provider
	DriveAPIBase   string // listing/metadata endpoint base
	DriveEmbedBase string // provider-hosted embed surface base

	// OAuth / OIDC
	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURL  string
	OIDCIssuerURL     string

	// Logging
	LogLevel  string
	LogFormat string

	// Local state
	StateDir     string // progress envelope + token file
	CacheDir     string // cached video blobs
	CacheMaxSize int64  // bytes, 0 = unlimited

	// Networking
	RequestTimeout   time.Duration
	FetchConcurrency int // concurrent folder listings during tree sync
	MaxTreeDepth     int
	RequestsPerSec   float64 // client-side provider rate limit

	// Optional prometheus listener ("" = disabled)
	MetricsAddr string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DriveAPIBase:      envOr("DRIVE_API_BASE", "https://www.googleapis.com/drive/v3"),
		DriveEmbedBase:    envOr("DRIVE_EMBED_BASE", "https://drive.google.com"),
		OAuthClientID:     envOr("OAUTH_CLIENT_ID", ""),
		OAuthClientSecret: envOr("OAUTH_CLIENT_SECRET", ""),
		OAuthRedirectURL:  envOr("OAUTH_REDIRECT_URL", "http://localhost:5173"),
		OIDCIssuerURL:     envOr("OIDC_ISSUER_URL", "https://accounts.google.com"),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		LogFormat:         envOr("LOG_FORMAT", "console"),
		StateDir:          envOr("STATE_DIR", defaultStateDir()),
		CacheDir:          envOr("CACHE_DIR", defaultCacheDir()),
		CacheMaxSize:      envInt64("CACHE_MAX_SIZE", 4<<30), // 4GB default
		RequestTimeout:    envDuration("REQUEST_TIMEOUT", 30*time.Second),
		FetchConcurrency:  envInt("FETCH_CONCURRENCY", 4),
		MaxTreeDepth:      envInt("MAX_TREE_DEPTH", 32),
		RequestsPerSec:    envFloat("REQUESTS_PER_SEC", 8),
		MetricsAddr:       envOr("METRICS_ADDR", ""),
	}

	return cfg, nil
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".queroaulas"
	}
	return filepath.Join(home, ".config", "queroaulas")
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".queroaulas-cache"
	}
	return filepath.Join(home, ".cache", "queroaulas", "videos")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
