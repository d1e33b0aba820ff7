// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package supervisor

import (
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/gradesync/internal/supervisor/services"
)

// Components are the agent's long-running parts. Nil fields are skipped.
type Components struct {
	// data layer
	Compactor services.StartStopper
	Cache     services.Runner

	// sync layer
	Monitor    services.Runner
	Reconciler services.Runner
	Preloader  services.Preloader
	Subscriber services.Subscriber
	Preload    services.PreloadOptions

	// api layer
	Hub                 services.ContextHub
	HTTPServer          services.HTTPServer
	HTTPAddr            string
	HTTPShutdownTimeout time.Duration
}

// Install adds every non-nil component to its layer and returns the names
// of the services added, in order.
func (t *SupervisorTree) Install(c Components) []string {
	var names []string
	add := func(layer func(suture.Service) suture.ServiceToken, svc suture.Service) {
		layer(svc)
		names = append(names, fmt.Sprint(svc))
	}

	if c.Compactor != nil {
		add(t.AddDataService, services.NewCompactorService(c.Compactor))
	}
	if c.Cache != nil {
		add(t.AddDataService, services.NewRunnerService("cache-sweeper", c.Cache))
	}

	if c.Monitor != nil {
		add(t.AddSyncService, services.NewRunnerService("connectivity-monitor", c.Monitor))
	}
	if c.Reconciler != nil {
		add(t.AddSyncService, services.NewRunnerService("reconciler", c.Reconciler))
	}
	if c.Preloader != nil {
		add(t.AddSyncService, services.NewPreloadService(c.Preloader, c.Subscriber, c.Preload))
	}

	if c.Hub != nil {
		add(t.AddAPIService, services.NewWebSocketHubService(c.Hub))
	}
	if c.HTTPServer != nil {
		add(t.AddAPIService, services.NewHTTPServerService(c.HTTPServer, c.HTTPAddr, c.HTTPShutdownTimeout))
	}

	t.logger.Info("services installed", "count", len(names), "services", names)
	return names
}
