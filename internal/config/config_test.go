package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if cfg.Port == 0 || cfg.DownloadDir == "" || cfg.TempDir == "" {
		t.Fatalf("default config invalid: %+v", cfg)
	}
	if cfg.MaxConcurrentJobs < 1 || cfg.RateLimitCount < 1 {
		t.Fatalf("default bounds invalid: %+v", cfg)
	}
	if cfg.Retention() != 24*time.Hour {
		t.Fatalf("expected 24h default retention, got %v", cfg.Retention())
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("not_exists.yml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults for missing file, got %+v", cfg)
	}
}

func TestLoadReadsAndValidates(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "cfg.yml")
	content := []byte("port: 9090\n" +
		"download_dir: media\n" +
		"max_file_size_bytes: 1048576\n" +
		"disk_quota_bytes: 10485760\n" +
		"retention_seconds: 120\n" +
		"cleanup_interval_seconds: 30\n" +
		"rate_limit_count: 5\n" +
		"rate_limit_window_seconds: 10\n" +
		"max_concurrent_jobs: 2\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.DownloadDir != "media" || cfg.MaxConcurrentJobs != 2 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.RateLimitWindow() != 10*time.Second || cfg.CleanupInterval() != 30*time.Second {
		t.Fatalf("durations not derived: %+v", cfg)
	}
	// unset keys fall back to defaults
	if cfg.TempDir != Default().TempDir || cfg.QueueSize != Default().QueueSize {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalidBounds(t *testing.T) {
	cases := map[string]string{
		"concurrency": "max_concurrent_jobs: 0\n",
		"rate count":  "rate_limit_count: -1\n",
		"window":      "rate_limit_window_seconds: 0\n",
		"retention":   "retention_seconds: 0\n",
		"quota":       "max_file_size_bytes: 100\ndisk_quota_bytes: 50\n",
	}
	for name, content := range cases {
		path := filepath.Join(t.TempDir(), "cfg.yml")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("expected error for invalid %s", name)
		}
	}
}
