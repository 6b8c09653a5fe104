package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DriveAPIBase != "https://www.googleapis.com/drive/v3" {
		t.Errorf("DriveAPIBase = %q", cfg.DriveAPIBase)
	}
	if cfg.CacheMaxSize != 4<<30 {
		t.Errorf("CacheMaxSize = %d", cfg.CacheMaxSize)
	}
	if cfg.FetchConcurrency != 4 || cfg.MaxTreeDepth != 32 {
		t.Errorf("concurrency = %d, depth = %d", cfg.FetchConcurrency, cfg.MaxTreeDepth)
	}
	if cfg.StateDir == "" || cfg.CacheDir == "" {
		t.Error("state and cache dirs should always resolve")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DRIVE_API_BASE", "http://localhost:9999/drive")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CACHE_MAX_SIZE", "1048576")
	t.Setenv("FETCH_CONCURRENCY", "8")
	t.Setenv("REQUEST_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DriveAPIBase != "http://localhost:9999/drive" {
		t.Errorf("DriveAPIBase = %q", cfg.DriveAPIBase)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.CacheMaxSize != 1<<20 {
		t.Errorf("CacheMaxSize = %d", cfg.CacheMaxSize)
	}
	if cfg.FetchConcurrency != 8 {
		t.Errorf("FetchConcurrency = %d", cfg.FetchConcurrency)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("CACHE_MAX_SIZE", "not-a-number")
	t.Setenv("FETCH_CONCURRENCY", "")
	t.Setenv("REQUEST_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheMaxSize != 4<<30 {
		t.Errorf("CacheMaxSize = %d, want the default", cfg.CacheMaxSize)
	}
	if cfg.FetchConcurrency != 4 {
		t.Errorf("FetchConcurrency = %d, want the default", cfg.FetchConcurrency)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want the default", cfg.RequestTimeout)
	}
}
