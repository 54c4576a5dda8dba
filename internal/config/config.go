// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const prefix = "DEVMETRICS_"

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken    string
	GitHubUsername string
	// SecretKey is the AES-256 key for stored tokens. Nil disables account storage.
	SecretKey []byte

	ListenAddr string
	DBPath     string

	// SyncInterval between scheduled cycles. Zero disables the scheduler.
	SyncInterval      time.Duration
	SyncConcurrency   int
	MetricsWindow     time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	CommitStats       bool
	LogLevel          slog.Level
}

// HasGitHubCredentials reports whether a bootstrap account is configured.
func (c *Config) HasGitHubCredentials() bool {
	return c.GitHubToken != "" && c.GitHubUsername != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// GitHub credentials (DEVMETRICS_GITHUB_TOKEN, DEVMETRICS_GITHUB_USERNAME) are optional;
// when both are set they are stored as an account at startup.
// Optional variables with defaults: DEVMETRICS_LISTEN_ADDR (127.0.0.1:8080),
// DEVMETRICS_DB_PATH (devmetrics.db), DEVMETRICS_SYNC_INTERVAL (1h),
// DEVMETRICS_SYNC_CONCURRENCY (4), DEVMETRICS_METRICS_WINDOW (720h),
// DEVMETRICS_MAX_RETRIES (3), DEVMETRICS_REQUESTS_PER_SECOND (10),
// DEVMETRICS_COMMIT_STATS (true), DEVMETRICS_LOG_LEVEL (info).
func Load() (*Config, error) {
	cfg := &Config{
		GitHubToken:       os.Getenv(prefix + "GITHUB_TOKEN"),
		GitHubUsername:    os.Getenv(prefix + "GITHUB_USERNAME"),
		ListenAddr:        "127.0.0.1:8080",
		DBPath:            "devmetrics.db",
		SyncInterval:      time.Hour,
		SyncConcurrency:   4,
		MetricsWindow:     720 * time.Hour,
		MaxRetries:        3,
		RequestsPerSecond: 10,
		CommitStats:       true,
		LogLevel:          slog.LevelInfo,
	}

	if cfg.GitHubToken != "" && cfg.GitHubUsername == "" {
		return nil, fmt.Errorf("%sGITHUB_USERNAME is required when %sGITHUB_TOKEN is set", prefix, prefix)
	}

	if v, ok := os.LookupEnv(prefix + "LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv(prefix + "DB_PATH"); ok {
		cfg.DBPath = v
	}

	if v, ok := os.LookupEnv(prefix + "SECRET_KEY"); ok && v != "" {
		key, err := hex.DecodeString(v)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("%sSECRET_KEY must be 64 hex characters (32 bytes)", prefix)
		}
		cfg.SecretKey = key
	}

	var err error
	if cfg.SyncInterval, err = duration("SYNC_INTERVAL", cfg.SyncInterval, 0); err != nil {
		return nil, err
	}
	if cfg.MetricsWindow, err = duration("METRICS_WINDOW", cfg.MetricsWindow, 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SyncConcurrency, err = integer("SYNC_CONCURRENCY", cfg.SyncConcurrency, 1); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = integer("MAX_RETRIES", cfg.MaxRetries, 0); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv(prefix + "REQUESTS_PER_SECOND"); ok {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps < 0 {
			return nil, fmt.Errorf("%sREQUESTS_PER_SECOND has invalid value %q: must be a non-negative number", prefix, v)
		}
		cfg.RequestsPerSecond = rps
	}

	if v, ok := os.LookupEnv(prefix + "COMMIT_STATS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%sCOMMIT_STATS has invalid boolean %q: %w", prefix, v, err)
		}
		cfg.CommitStats = b
	}

	if v, ok := os.LookupEnv(prefix + "LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
			return nil, fmt.Errorf("%sLOG_LEVEL has invalid level %q: %w", prefix, v, err)
		}
	}

	return cfg, nil
}

func duration(name string, def, minimum time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(prefix + name)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s has invalid duration %q: %w", prefix, name, v, err)
	}
	if d < minimum || d < 0 {
		return 0, fmt.Errorf("%s%s must be at least %s, got %s", prefix, name, minimum, d)
	}
	return d, nil
}

func integer(name string, def, minimum int) (int, error) {
	v, ok := os.LookupEnv(prefix + name)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s has invalid integer %q: %w", prefix, name, v, err)
	}
	if n < minimum {
		return 0, fmt.Errorf("%s%s must be at least %d, got %d", prefix, name, minimum, n)
	}
	return n, nil
}
