// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package store

import (
	"time"
)

// Config holds the BadgerDB and compaction settings of the local store.
type Config struct {
	// Path is the BadgerDB directory.
	Path string

	// SyncWrites fsyncs every commit. A write the facade acknowledged must
	// survive a power cut, so this stays on outside tests.
	SyncWrites bool

	Compression      bool
	MemTableSize     int64
	ValueLogFileSize int64
	NumCompactors    int

	// GCRatio is the discard ratio passed to RunValueLogGC.
	GCRatio float64

	// CloseTimeout bounds how long Close waits for BadgerDB.
	CloseTimeout time.Duration

	// CompactInterval is how often the Compactor runs.
	CompactInterval time.Duration

	// SyncedRetention is how long synced items stay queryable before the
	// Compactor purges them.
	SyncedRetention time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Path:             "./data/gradesync",
		SyncWrites:       true,
		Compression:      true,
		MemTableSize:     16 * 1024 * 1024,
		ValueLogFileSize: 64 * 1024 * 1024,
		NumCompactors:    2,
		GCRatio:          0.5,
		CloseTimeout:     30 * time.Second,
		CompactInterval:  time.Hour,
		SyncedRetention:  7 * 24 * time.Hour,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		return &ConfigError{Field: "Path", Message: "store path is required"}
	}
	if c.MemTableSize < 8*1024*1024 {
		return &ConfigError{Field: "MemTableSize", Message: "must be at least 8MB"}
	}
	if c.ValueLogFileSize < 1024*1024 {
		return &ConfigError{Field: "ValueLogFileSize", Message: "must be at least 1MB"}
	}
	if c.NumCompactors < 2 {
		return &ConfigError{Field: "NumCompactors", Message: "must be at least 2 (BadgerDB requirement)"}
	}
	if c.GCRatio <= 0 || c.GCRatio >= 1 {
		return &ConfigError{Field: "GCRatio", Message: "must be between 0 and 1"}
	}
	if c.CompactInterval < time.Minute {
		return &ConfigError{Field: "CompactInterval", Message: "must be at least 1 minute"}
	}
	if c.SyncedRetention < time.Hour {
		return &ConfigError{Field: "SyncedRetention", Message: "must be at least 1 hour"}
	}
	return nil
}

// ConfigError is returned by Validate.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "store config error: " + e.Field + ": " + e.Message
}
