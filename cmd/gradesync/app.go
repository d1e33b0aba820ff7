// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package main

import (
	"fmt"
	"net/http"

	"github.com/tomtom215/gradesync/internal/api"
	"github.com/tomtom215/gradesync/internal/cache"
	"github.com/tomtom215/gradesync/internal/config"
	"github.com/tomtom215/gradesync/internal/connectivity"
	"github.com/tomtom215/gradesync/internal/offline"
	"github.com/tomtom215/gradesync/internal/reconciler"
	"github.com/tomtom215/gradesync/internal/records"
	"github.com/tomtom215/gradesync/internal/remote"
	"github.com/tomtom215/gradesync/internal/store"
	"github.com/tomtom215/gradesync/internal/supervisor"
	"github.com/tomtom215/gradesync/internal/supervisor/services"
	ws "github.com/tomtom215/gradesync/internal/websocket"
)

// app holds the wired agent. Every component is built here and nowhere
// else; packages never reach for globals.
type app struct {
	cfg *config.Config

	store      *store.Store
	remote     *remote.Client
	monitor    *connectivity.Monitor
	cache      *cache.Cache
	access     *offline.Access
	hub        *ws.Hub
	records    *records.Service
	reconciler *reconciler.Reconciler
	compactor  *store.Compactor
	server     *http.Server

	unsubscribe func()
}

func newApp(cfg *config.Config) (*app, error) {
	st, err := store.Open(storeConfig(&cfg.Store))
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	a := &app{cfg: cfg, store: st}
	a.remote = remote.New(&cfg.Remote)
	a.monitor = connectivity.NewMonitor(a.remote, connectivity.Config{
		ProbeInterval:    cfg.Connectivity.ProbeInterval,
		ProbeTimeout:     cfg.Connectivity.ProbeTimeout,
		FailureThreshold: cfg.Connectivity.FailureThreshold,
		AssumeOnline:     cfg.Connectivity.AssumeOnline,
	})
	a.cache = cache.New(cache.Config{
		TTL:           cfg.Cache.TTL,
		MaxEntries:    cfg.Cache.MaxEntries,
		PurgeAfter:    cfg.Cache.PurgeAfter,
		SweepInterval: cfg.Cache.SweepInterval,
	})
	a.access = offline.New(a.remote, a.cache, a.monitor, st, &cfg.Cache)
	a.hub = ws.NewHub()
	a.records = records.New(st, a.access, a.hub)
	a.reconciler = reconciler.New(st, a.access, a.monitor, a.hub, reconciler.Config{
		SyncOnStartup: cfg.Reconciler.SyncOnStartup,
		RetryInterval: cfg.Reconciler.RetryInterval,
		MaxRetries:    cfg.Reconciler.MaxRetries,
		RetryBackoff:  cfg.Reconciler.RetryBackoff,
		MaxBackoff:    cfg.Reconciler.MaxBackoff,
	})
	a.records.SetSyncTrigger(a.reconciler)
	a.compactor = store.NewCompactor(st)
	a.unsubscribe = a.monitor.Subscribe(a.hub.BroadcastConnectivity)

	if cfg.Server.Enabled {
		handler := api.NewHandler(api.Deps{
			Records:      a.records,
			Syncer:       a.reconciler,
			Queue:        st,
			Connectivity: a.monitor,
			Hub:          a.hub,
			Breaker:      a.remote,
			Version:      version,
		})
		mw := api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(&cfg.Server))
		a.server = &http.Server{
			Addr:         cfg.Server.ListenAddr(),
			Handler:      api.NewRouter(handler, mw).SetupChi(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}
	return a, nil
}

func storeConfig(c *config.StoreConfig) *store.Config {
	return &store.Config{
		Path:             c.Path,
		SyncWrites:       c.SyncWrites,
		Compression:      c.Compression,
		MemTableSize:     c.MemTableSize,
		ValueLogFileSize: c.ValueLogFileSize,
		NumCompactors:    c.NumCompactors,
		GCRatio:          c.GCRatio,
		CloseTimeout:     c.CloseTimeout,
		CompactInterval:  c.CompactInterval,
		SyncedRetention:  c.SyncedRetention,
	}
}

// components lists what the supervisor runs. The HTTP server is only added
// when enabled; a nil *http.Server must not become a non-nil interface.
func (a *app) components() supervisor.Components {
	c := supervisor.Components{
		Compactor:  a.compactor,
		Cache:      a.cache,
		Monitor:    a.monitor,
		Reconciler: a.reconciler,
		Preloader:  a.records,
		Subscriber: a.monitor,
		Preload: services.PreloadOptions{
			TeacherID:   a.cfg.Preload.TeacherID,
			OnStartup:   a.cfg.Preload.OnStartup,
			OnReconnect: a.cfg.Preload.OnReconnect,
		},
		Hub: a.hub,
	}
	if a.server != nil {
		c.HTTPServer = a.server
		c.HTTPAddr = a.server.Addr
		c.HTTPShutdownTimeout = a.cfg.Server.ShutdownTimeout
	}
	return c
}

// close waits for background write-through replays and closes the store.
// Call it after the supervisor tree has stopped.
func (a *app) close() error {
	a.unsubscribe()
	a.records.Wait()
	a.reconciler.Wait()
	return a.store.Close()
}
