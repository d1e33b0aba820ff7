// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

/*
Package supervisor runs the agent's long-running services under a suture v4
tree, restarting any that fail with backoff.

	gradesync
	├── data-layer
	│   ├── store-compactor
	│   └── cache-sweeper
	├── sync-layer
	│   ├── connectivity-monitor
	│   ├── reconciler
	│   └── preload
	└── api-layer
	    ├── websocket-hub
	    └── http-server

Each layer counts failures on its own, so a reconciler crash loop backs off
without stopping the local API. Supervisor events are logged through
sutureslog into the zerolog pipeline.

Usage from main:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(),
		supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return err
	}
	tree.Install(supervisor.Components{Monitor: monitor, Reconciler: rec})
	err = tree.Serve(ctx)

Cancelling ctx stops every service; those that outlive the shutdown timeout
are listed by UnstoppedServiceReport.
*/
package supervisor
