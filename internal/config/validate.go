// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/gradesync/internal/logging"
)

// FieldError reports one invalid configuration value.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}

// Validate checks the configuration for values the agent cannot run with.
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateConnectivity(); err != nil {
		return err
	}
	if err := c.validateReconciler(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateRemote() error {
	if c.Remote.BaseURL == "" {
		return &FieldError{Field: "remote.base_url", Message: "is required (GRADESYNC_REMOTE_URL)"}
	}
	if err := validateHTTPURL(c.Remote.BaseURL); err != nil {
		return &FieldError{Field: "remote.base_url", Message: err.Error()}
	}
	if c.Remote.Timeout < time.Second {
		return &FieldError{Field: "remote.timeout", Message: "must be at least 1s"}
	}
	if c.Remote.HealthPath != "" && !strings.HasPrefix(c.Remote.HealthPath, "/") {
		return &FieldError{Field: "remote.health_path", Message: "must start with /"}
	}
	if c.Remote.RateLimit <= 0 || c.Remote.RateBurst < 1 {
		return &FieldError{Field: "remote.rate_limit", Message: "rate and burst must be positive"}
	}
	if c.Remote.BreakerFailureRatio <= 0 || c.Remote.BreakerFailureRatio > 1 {
		return &FieldError{Field: "remote.breaker_failure_ratio", Message: "must be in (0, 1]"}
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.Path == "" {
		return &FieldError{Field: "store.path", Message: "is required"}
	}
	if c.Store.NumCompactors < 2 {
		return &FieldError{Field: "store.num_compactors", Message: "must be at least 2 (BadgerDB requirement)"}
	}
	if c.Store.MemTableSize < 8<<20 {
		return &FieldError{Field: "store.memtable_size", Message: "must be at least 8MB"}
	}
	if c.Store.ValueLogFileSize < 1<<20 {
		return &FieldError{Field: "store.vlog_file_size", Message: "must be at least 1MB"}
	}
	if c.Store.CompactInterval < time.Minute {
		return &FieldError{Field: "store.compact_interval", Message: "must be at least 1m"}
	}
	if c.Store.SyncedRetention < time.Hour {
		return &FieldError{Field: "store.synced_retention", Message: "must be at least 1h"}
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.TTL <= 0 {
		return &FieldError{Field: "cache.ttl", Message: "must be positive"}
	}
	if c.Cache.MaxEntries < 1 {
		return &FieldError{Field: "cache.max_entries", Message: "must be at least 1"}
	}
	if c.Cache.PurgeAfter < c.Cache.TTL {
		return &FieldError{Field: "cache.purge_after", Message: "must not be shorter than cache.ttl"}
	}
	if c.Cache.MaxStale < 0 {
		return &FieldError{Field: "cache.max_stale", Message: "must not be negative"}
	}
	return nil
}

func (c *Config) validateConnectivity() error {
	if c.Connectivity.ProbeInterval < time.Second {
		return &FieldError{Field: "connectivity.probe_interval", Message: "must be at least 1s"}
	}
	if c.Connectivity.ProbeTimeout <= 0 || c.Connectivity.ProbeTimeout > c.Connectivity.ProbeInterval {
		return &FieldError{Field: "connectivity.probe_timeout", Message: "must be positive and not exceed probe_interval"}
	}
	if c.Connectivity.FailureThreshold < 1 {
		return &FieldError{Field: "connectivity.failure_threshold", Message: "must be at least 1"}
	}
	return nil
}

func (c *Config) validateReconciler() error {
	if c.Reconciler.RetryInterval < time.Second {
		return &FieldError{Field: "reconciler.retry_interval", Message: "must be at least 1s"}
	}
	if c.Reconciler.MaxRetries < 0 {
		return &FieldError{Field: "reconciler.max_retries", Message: "must not be negative"}
	}
	if c.Reconciler.RetryBackoff <= 0 || c.Reconciler.MaxBackoff < c.Reconciler.RetryBackoff {
		return &FieldError{Field: "reconciler.retry_backoff", Message: "must be positive and not exceed max_backoff"}
	}
	return nil
}

func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &FieldError{Field: "server.port", Message: fmt.Sprintf("%d is out of range", c.Server.Port)}
	}
	if c.Server.RateLimitRequests < 1 || c.Server.RateLimitWindow <= 0 {
		return &FieldError{Field: "server.rate_limit_requests", Message: "rate limit must be positive"}
	}
	if c.Server.Host != "127.0.0.1" && c.Server.Host != "localhost" && c.Server.Host != "::1" {
		logging.Warn().Str("host", c.Server.Host).Msg("Local API is bound to a non-loopback address")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return &FieldError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return &FieldError{Field: "logging.format", Message: "must be json or console"}
	}
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// ListenAddr returns host:port for the local API.
func (s *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
