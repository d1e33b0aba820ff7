// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package remote

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

// ErrTransient marks a failure that may succeed if retried later: the service
// was unreachable, timed out, answered 5xx/408/429, or the circuit breaker is
// open. Callers fall back to cached data or queue the write.
var ErrTransient = errors.New("transient network failure")

// ErrMalformedResponse is returned when a 2xx body cannot be understood.
var ErrMalformedResponse = errors.New("malformed response from remote service")

// RejectionError is a definitive refusal by the remote service, typically a
// validation or conflict error. Retrying the same request will not help.
type RejectionError struct {
	Status  int
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("remote rejected request (status %d, %s): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("remote rejected request (status %d): %s", e.Status, msg)
}

// IsTransient reports whether err is a transient failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsRejection reports whether err is a RejectionError and returns it.
func IsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// isTransientStatus reports statuses worth retrying.
func isTransientStatus(status int) bool {
	return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

// errorBody is the optional error document the remote service returns.
type errorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func newRejection(status int, body []byte) *RejectionError {
	rej := &RejectionError{Status: status}
	var eb errorBody
	if len(body) > 0 && json.Unmarshal(body, &eb) == nil {
		if eb.Error != nil {
			rej.Code = eb.Error.Code
			rej.Message = eb.Error.Message
		} else {
			rej.Message = eb.Message
		}
	}
	if rej.Message == "" && len(body) > 0 && body[0] != '{' {
		rej.Message = string(body)
	}
	return rej
}
