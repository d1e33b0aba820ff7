// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package config

import (
	"time"
)

// Config is the complete agent configuration. It is loaded by Load from
// struct defaults, an optional YAML file and environment variables.
type Config struct {
	Remote       RemoteConfig       `koanf:"remote"`
	Store        StoreConfig        `koanf:"store"`
	Cache        CacheConfig        `koanf:"cache"`
	Connectivity ConnectivityConfig `koanf:"connectivity"`
	Reconciler   ReconcilerConfig   `koanf:"reconciler"`
	Preload      PreloadConfig      `koanf:"preload"`
	Server       ServerConfig       `koanf:"server"`
	Logging      LoggingConfig      `koanf:"logging"`
	Supervisor   SupervisorConfig   `koanf:"supervisor"`
}

// RemoteConfig describes the remote records service.
type RemoteConfig struct {
	BaseURL    string        `koanf:"base_url"`
	APIToken   string        `koanf:"api_token"`
	Timeout    time.Duration `koanf:"timeout"`
	HealthPath string        `koanf:"health_path"`

	// RateLimit is the steady request rate allowed towards the remote service
	// (requests per second); RateBurst is the bucket size.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	BreakerMaxRequests   uint32        `koanf:"breaker_max_requests"`
	BreakerInterval      time.Duration `koanf:"breaker_interval"`
	BreakerTimeout       time.Duration `koanf:"breaker_timeout"`
	BreakerMinRequests   uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio  float64       `koanf:"breaker_failure_ratio"`
	MaxResponseBodyBytes int64         `koanf:"max_response_body_bytes"`
}

// StoreConfig configures the BadgerDB-backed local store.
type StoreConfig struct {
	Path             string        `koanf:"path"`
	SyncWrites       bool          `koanf:"sync_writes"`
	Compression      bool          `koanf:"compression"`
	MemTableSize     int64         `koanf:"memtable_size"`
	ValueLogFileSize int64         `koanf:"vlog_file_size"`
	NumCompactors    int           `koanf:"num_compactors"`
	GCRatio          float64       `koanf:"gc_ratio"`
	CloseTimeout     time.Duration `koanf:"close_timeout"`
	CompactInterval  time.Duration `koanf:"compact_interval"`
	SyncedRetention  time.Duration `koanf:"synced_retention"`
}

// CacheConfig configures the in-memory response cache.
type CacheConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	MaxEntries    int           `koanf:"max_entries"`
	PurgeAfter    time.Duration `koanf:"purge_after"`
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// MaxStale bounds how old a cached entry may be when it is served as an
	// offline fallback for one of BoundedResources. Zero means unbounded.
	MaxStale         time.Duration `koanf:"max_stale"`
	BoundedResources []string      `koanf:"bounded_resources"`
}

// ConnectivityConfig configures the reachability probe.
type ConnectivityConfig struct {
	ProbeInterval    time.Duration `koanf:"probe_interval"`
	ProbeTimeout     time.Duration `koanf:"probe_timeout"`
	FailureThreshold int           `koanf:"failure_threshold"`
	AssumeOnline     bool          `koanf:"assume_online"`
}

// ReconcilerConfig configures automatic and scheduled reconciliation.
type ReconcilerConfig struct {
	SyncOnStartup bool          `koanf:"sync_on_startup"`
	RetryInterval time.Duration `koanf:"retry_interval"`
	MaxRetries    int           `koanf:"max_retries"`
	RetryBackoff  time.Duration `koanf:"retry_backoff"`
	MaxBackoff    time.Duration `koanf:"max_backoff"`
}

// PreloadConfig controls the reference data warm-up run at startup and after
// each reconnect.
type PreloadConfig struct {
	TeacherID   string `koanf:"teacher_id"`
	OnStartup   bool   `koanf:"on_startup"`
	OnReconnect bool   `koanf:"on_reconnect"`
}

// ServerConfig configures the local UI/operator HTTP API.
type ServerConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig configures the suture service tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// IsBounded reports whether offline fallback for resource is subject to
// MaxStale.
func (c *CacheConfig) IsBounded(resource string) bool {
	if c.MaxStale <= 0 {
		return false
	}
	for _, r := range c.BoundedResources {
		if r == resource {
			return true
		}
	}
	return false
}
