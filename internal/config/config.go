package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort                   = 8080
	defaultDownloadDir            = "downloads"
	defaultTempDir                = "temp"
	defaultMaxFileSizeBytes       = 500 * 1024 * 1024
	defaultDiskQuotaBytes         = 5 * 1024 * 1024 * 1024
	defaultRetentionSeconds       = 24 * 3600
	defaultCleanupIntervalSeconds = 3600
	defaultRateLimitCount         = 10
	defaultRateLimitWindowSeconds = 60
	defaultMaxConcurrentJobs      = 3
	defaultQueueSize              = 16
	defaultExtractTimeoutSeconds  = 20
	defaultDownloadTimeoutSeconds = 120
)

// Config describes runtime configuration for the service.
type Config struct {
	Port                   int    `yaml:"port"`
	DownloadDir            string `yaml:"download_dir"`
	TempDir                string `yaml:"temp_dir"`
	MaxFileSizeBytes       int64  `yaml:"max_file_size_bytes"`
	DiskQuotaBytes         int64  `yaml:"disk_quota_bytes"`
	RetentionSeconds       int    `yaml:"retention_seconds"`
	CleanupIntervalSeconds int    `yaml:"cleanup_interval_seconds"`
	RateLimitCount         int    `yaml:"rate_limit_count"`
	RateLimitWindowSeconds int    `yaml:"rate_limit_window_seconds"`
	MaxConcurrentJobs      int    `yaml:"max_concurrent_jobs"`
	QueueSize              int    `yaml:"queue_size"`
	ExtractTimeoutSeconds  int    `yaml:"extract_timeout_seconds"`
	DownloadTimeoutSeconds int    `yaml:"download_timeout_seconds"`
}

// Default returns sane defaults for a single-tenant deployment.
func Default() Config {
	return Config{
		Port:                   defaultPort,
		DownloadDir:            defaultDownloadDir,
		TempDir:                defaultTempDir,
		MaxFileSizeBytes:       defaultMaxFileSizeBytes,
		DiskQuotaBytes:         defaultDiskQuotaBytes,
		RetentionSeconds:       defaultRetentionSeconds,
		CleanupIntervalSeconds: defaultCleanupIntervalSeconds,
		RateLimitCount:         defaultRateLimitCount,
		RateLimitWindowSeconds: defaultRateLimitWindowSeconds,
		MaxConcurrentJobs:      defaultMaxConcurrentJobs,
		QueueSize:              defaultQueueSize,
		ExtractTimeoutSeconds:  defaultExtractTimeoutSeconds,
		DownloadTimeoutSeconds: defaultDownloadTimeoutSeconds,
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	// basic normalization
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = defaultDownloadDir
	}
	if cfg.TempDir == "" {
		cfg.TempDir = defaultTempDir
	}
	// validate resource bounds explicitly: values < 1 are not allowed
	if cfg.MaxConcurrentJobs < 1 {
		return cfg, fmt.Errorf("invalid max_concurrent_jobs: %d (must be >= 1)", cfg.MaxConcurrentJobs)
	}
	if cfg.QueueSize < 1 {
		return cfg, fmt.Errorf("invalid queue_size: %d (must be >= 1)", cfg.QueueSize)
	}
	if cfg.RateLimitCount < 1 {
		return cfg, fmt.Errorf("invalid rate_limit_count: %d (must be >= 1)", cfg.RateLimitCount)
	}
	if cfg.RateLimitWindowSeconds < 1 {
		return cfg, fmt.Errorf("invalid rate_limit_window_seconds: %d (must be >= 1)", cfg.RateLimitWindowSeconds)
	}
	if cfg.MaxFileSizeBytes < 1 {
		return cfg, fmt.Errorf("invalid max_file_size_bytes: %d (must be >= 1)", cfg.MaxFileSizeBytes)
	}
	if cfg.DiskQuotaBytes < cfg.MaxFileSizeBytes {
		return cfg, fmt.Errorf("invalid disk_quota_bytes: %d (must be >= max_file_size_bytes)", cfg.DiskQuotaBytes)
	}
	if cfg.RetentionSeconds < 1 {
		return cfg, fmt.Errorf("invalid retention_seconds: %d (must be >= 1)", cfg.RetentionSeconds)
	}
	if cfg.CleanupIntervalSeconds < 1 {
		return cfg, fmt.Errorf("invalid cleanup_interval_seconds: %d (must be >= 1)", cfg.CleanupIntervalSeconds)
	}
	return cfg, nil
}

// Retention is RetentionSeconds as a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

// CleanupInterval is CleanupIntervalSeconds as a duration.
func (c Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

// RateLimitWindow is RateLimitWindowSeconds as a duration.
func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// ExtractTimeout is ExtractTimeoutSeconds as a duration.
func (c Config) ExtractTimeout() time.Duration {
	return time.Duration(c.ExtractTimeoutSeconds) * time.Second
}

// DownloadTimeout is DownloadTimeoutSeconds as a duration.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSeconds) * time.Second
}
