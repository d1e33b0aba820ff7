// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/gradesync/internal/middleware"
	"github.com/tomtom215/gradesync/internal/models"
)

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. mw may be nil for defaults.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw}
}

// SetupChi builds the HTTP handler for the local API.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // must be global to answer OPTIONS preflight

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, &models.APIError{Code: ErrCodeNotFound, Message: "No such endpoint"})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)

		r.Get("/health", router.handler.Health)
		r.Get("/health/live", router.handler.HealthLive)

		// The event stream is long-lived and exempt from rate limiting.
		r.Get("/ws", router.handler.WebSocket(router.chiMiddleware.IsOriginAllowed))

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			r.Use(chimiddleware.Compress(5, "application/json"))

			r.Get("/students", router.handler.Students)
			r.Post("/students", router.handler.SaveStudent)
			r.Put("/students/{id}", router.handler.SaveStudent)
			r.Get("/classes", router.handler.Classes)
			r.Get("/subjects", router.handler.Subjects)
			r.Get("/assignments", router.handler.Assignments)

			r.Post("/grades", router.handler.SaveGrade)
			r.Put("/grades/{id}", router.handler.UpdateGrade)
			r.Delete("/grades/{id}", router.handler.DeleteGrade)
			r.Post("/attendance", router.handler.SaveAttendance)
			r.Put("/attendance/{id}", router.handler.SaveAttendance)
			r.Post("/evaluations", router.handler.SaveEvaluation)
			r.Put("/evaluations/{id}", router.handler.SaveEvaluation)

			r.Post("/preload", router.handler.Preload)

			r.Route("/sync", func(r chi.Router) {
				r.Get("/status", router.handler.SyncStatus)
				r.Post("/run", router.handler.SyncRun)
				r.Post("/retry", router.handler.SyncRetry)
			})

			r.Get("/queue", router.handler.QueueList)
			r.Get("/queue/{id}", router.handler.QueueItem)
		})
	})

	return r
}
