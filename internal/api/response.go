// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gradesync/internal/logging"
	"github.com/tomtom215/gradesync/internal/models"
	"github.com/tomtom215/gradesync/internal/offline"
	"github.com/tomtom215/gradesync/internal/remote"
	"github.com/tomtom215/gradesync/internal/store"
	"github.com/tomtom215/gradesync/internal/validation"
)

// Error codes for API responses
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeNoCachedData       = "NO_CACHED_DATA"
	ErrCodeRemoteRejected     = "REMOTE_REJECTED"
	ErrCodeStoreError         = "STORE_ERROR"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// sanitizeLogValue removes control characters from strings to prevent log injection attacks.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func writeJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondData writes a success envelope. meta may be nil.
func respondData(w http.ResponseWriter, status int, data interface{}, meta *models.Metadata) {
	m := models.Metadata{}
	if meta != nil {
		m = *meta
	}
	m.Timestamp = time.Now().UTC()
	writeJSON(w, status, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: m,
	})
}

// respondError writes an error envelope.
func respondError(w http.ResponseWriter, status int, apiErr *models.APIError) {
	writeJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error:    apiErr,
	})
}

// respondBadRequest writes a 400 with a plain message.
func respondBadRequest(w http.ResponseWriter, message string) {
	respondError(w, http.StatusBadRequest, &models.APIError{Code: ErrCodeBadRequest, Message: message})
}

// respondErr maps a service error to a status code and error envelope.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if verr, ok := validation.IsValidationError(err); ok {
		respondError(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}
	if errors.Is(err, offline.ErrNoCachedData) {
		respondError(w, http.StatusServiceUnavailable, &models.APIError{
			Code:    ErrCodeNoCachedData,
			Message: "Offline and no cached copy is available",
		})
		return
	}
	if rej, ok := remote.IsRejection(err); ok {
		status := rej.Status
		if status < 400 || status > 499 {
			status = http.StatusBadGateway
		}
		respondError(w, status, &models.APIError{
			Code:    ErrCodeRemoteRejected,
			Message: rej.Error(),
			Details: map[string]interface{}{"remote_status": rej.Status, "remote_code": rej.Code},
		})
		return
	}
	if errors.Is(err, store.ErrItemNotFound) {
		respondError(w, http.StatusNotFound, &models.APIError{Code: ErrCodeNotFound, Message: "Queue item not found"})
		return
	}
	if errors.Is(err, store.ErrStoreClosed) {
		respondError(w, http.StatusServiceUnavailable, &models.APIError{Code: ErrCodeStoreError, Message: "Local store is closed"})
		return
	}

	logging.Ctx(r.Context()).Error().
		Str("path", sanitizeLogValue(r.URL.Path)).
		Str("error", sanitizeLogValue(err.Error())).
		Msg("API error")
	respondError(w, http.StatusInternalServerError, &models.APIError{Code: ErrCodeInternalError, Message: "Internal error"})
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondBadRequest(w, "Invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// cacheMetadata builds response metadata for a read.
func cacheMetadata[T any](entry offline.CacheEntry[T]) *models.Metadata {
	meta := &models.Metadata{FromCache: entry.IsFromCache}
	if entry.IsFromCache && !entry.CachedAt.IsZero() {
		at := entry.CachedAt.UTC()
		meta.CachedAt = &at
	}
	return meta
}

// validateRequest validates query parameters bound into a struct.
func validateRequest(v interface{}) *models.APIError {
	if verr := validation.ValidateStruct(v); verr != nil {
		return verr.ToAPIError()
	}
	return nil
}
