// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package models

import (
	"time"
)

// APIResponse is the envelope every local API endpoint returns.
//
// Status is "success" with Data set, or "error" with Error set:
//
//	{
//	  "status": "success",
//	  "data": [...],
//	  "metadata": {
//	    "timestamp": "2026-03-02T08:15:00Z",
//	    "from_cache": true,
//	    "cached_at": "2026-03-02T07:58:41Z"
//	  }
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata describes where the payload came from. FromCache and CachedAt are
// set when the data was served from the local store or cache rather than the
// remote service.
type Metadata struct {
	Timestamp time.Time  `json:"timestamp"`
	FromCache bool       `json:"from_cache,omitempty"`
	CachedAt  *time.Time `json:"cached_at,omitempty"`
	Queued    bool       `json:"queued,omitempty"`
}

// APIError is the error body of a failed request.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
