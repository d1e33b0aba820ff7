// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/gradesync/internal/logging"
	"github.com/tomtom215/gradesync/internal/models"
	ws "github.com/tomtom215/gradesync/internal/websocket"
)

// upgrader builds a WebSocket upgrader. originAllowed may be nil, in which
// case only same-host and origin-less (non-browser) clients are accepted.
func upgrader(originAllowed func(string) bool) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Local tooling; browsers always send Origin.
				return true
			}
			if origin == "http://"+r.Host || origin == "https://"+r.Host {
				return true
			}
			if originAllowed != nil && originAllowed(origin) {
				return true
			}
			logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
			return false
		},
	}
}

// WebSocket upgrades the connection and subscribes it to the event stream.
func (h *Handler) WebSocket(originAllowed func(string) bool) http.HandlerFunc {
	up := upgrader(originAllowed)
	return func(w http.ResponseWriter, r *http.Request) {
		if h.hub == nil {
			respondError(w, http.StatusServiceUnavailable, &models.APIError{
				Code:    ErrCodeServiceUnavailable,
				Message: "WebSocket service unavailable",
			})
			return
		}

		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response.
			logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		ws.NewClient(h.hub, conn).Start()
	}
}
