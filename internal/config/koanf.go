// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where a config file is looked for, in order.
var DefaultConfigPaths = []string{
	"gradesync.yaml",
	"gradesync.yml",
	"config.yaml",
	"/etc/gradesync/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL:              "",
			Timeout:              15 * time.Second,
			HealthPath:           "/health",
			RateLimit:            10,
			RateBurst:            5,
			BreakerMaxRequests:   3,
			BreakerInterval:      time.Minute,
			BreakerTimeout:       2 * time.Minute,
			BreakerMinRequests:   10,
			BreakerFailureRatio:  0.6,
			MaxResponseBodyBytes: 16 << 20,
		},
		Store: StoreConfig{
			Path:             "./data/gradesync",
			SyncWrites:       true,
			Compression:      true,
			MemTableSize:     16 << 20,
			ValueLogFileSize: 64 << 20,
			NumCompactors:    2,
			GCRatio:          0.5,
			CloseTimeout:     30 * time.Second,
			CompactInterval:  time.Hour,
			SyncedRetention:  7 * 24 * time.Hour,
		},
		Cache: CacheConfig{
			TTL:              5 * time.Minute,
			MaxEntries:       1000,
			PurgeAfter:       24 * time.Hour,
			SweepInterval:    5 * time.Minute,
			MaxStale:         0,
			BoundedResources: []string{},
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval:    15 * time.Second,
			ProbeTimeout:     5 * time.Second,
			FailureThreshold: 2,
			AssumeOnline:     false,
		},
		Reconciler: ReconcilerConfig{
			SyncOnStartup: true,
			RetryInterval: time.Minute,
			MaxRetries:    5,
			RetryBackoff:  30 * time.Second,
			MaxBackoff:    30 * time.Minute,
		},
		Preload: PreloadConfig{
			OnStartup:   true,
			OnReconnect: true,
		},
		Server: ServerConfig{
			Enabled:           true,
			Host:              "127.0.0.1",
			Port:              8737,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"http://localhost:5173"},
			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load reads configuration from, in increasing priority:
//  1. built-in defaults
//  2. an optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. environment variables listed in envTransformFunc
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// GRADESYNC_REMOTE_URL -> remote.base_url, LOG_LEVEL -> logging.level, ...
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"cache.bounded_resources",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue // unset, or already a list from YAML
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to config paths.
// Unlisted variables are ignored so unrelated environment does not leak in.
var envMappings = map[string]string{
	"gradesync_remote_url":             "remote.base_url",
	"gradesync_remote_token":           "remote.api_token",
	"gradesync_remote_timeout":         "remote.timeout",
	"gradesync_remote_health_path":     "remote.health_path",
	"gradesync_remote_rate_limit":      "remote.rate_limit",
	"gradesync_remote_rate_burst":      "remote.rate_burst",
	"gradesync_breaker_timeout":        "remote.breaker_timeout",
	"gradesync_breaker_failure_ratio":  "remote.breaker_failure_ratio",
	"gradesync_data_dir":               "store.path",
	"gradesync_store_sync_writes":      "store.sync_writes",
	"gradesync_store_compact_interval": "store.compact_interval",
	"gradesync_synced_retention":       "store.synced_retention",
	"gradesync_cache_ttl":              "cache.ttl",
	"gradesync_cache_max_entries":      "cache.max_entries",
	"gradesync_cache_purge_after":      "cache.purge_after",
	"gradesync_cache_max_stale":        "cache.max_stale",
	"gradesync_cache_bounded":          "cache.bounded_resources",
	"gradesync_probe_interval":         "connectivity.probe_interval",
	"gradesync_probe_timeout":          "connectivity.probe_timeout",
	"gradesync_probe_failures":         "connectivity.failure_threshold",
	"gradesync_assume_online":          "connectivity.assume_online",
	"gradesync_sync_on_startup":        "reconciler.sync_on_startup",
	"gradesync_retry_interval":         "reconciler.retry_interval",
	"gradesync_max_retries":            "reconciler.max_retries",
	"gradesync_retry_backoff":          "reconciler.retry_backoff",
	"gradesync_teacher_id":             "preload.teacher_id",
	"gradesync_preload_on_startup":     "preload.on_startup",
	"gradesync_preload_on_reconnect":   "preload.on_reconnect",
	"gradesync_http_enabled":           "server.enabled",
	"gradesync_http_host":              "server.host",
	"gradesync_http_port":              "server.port",
	"gradesync_cors_origins":           "server.cors_origins",
	"log_level":                        "logging.level",
	"log_format":                       "logging.format",
	"log_caller":                       "logging.caller",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
