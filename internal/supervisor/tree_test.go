// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/gradesync/internal/config"
	"github.com/tomtom215/gradesync/internal/connectivity"
	"github.com/tomtom215/gradesync/internal/records"
	"github.com/tomtom215/gradesync/internal/supervisor/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSupervisorTreeConstruction(t *testing.T) {
	t.Run("applies defaults for zero config", func(t *testing.T) {
		tree, err := NewSupervisorTree(testLogger(), TreeConfig{})
		if err != nil {
			t.Fatalf("NewSupervisorTree: %v", err)
		}
		if tree.Root() == nil {
			t.Fatal("root supervisor should not be nil")
		}
		if tree.config != DefaultTreeConfig() {
			t.Errorf("config = %+v, want defaults", tree.config)
		}
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		tree, _ := NewSupervisorTree(testLogger(), TreeConfigFrom(config.SupervisorConfig{
			FailureThreshold: 3,
			FailureBackoff:   time.Second,
		}))
		if tree.config.FailureThreshold != 3 || tree.config.FailureBackoff != time.Second {
			t.Errorf("config = %+v", tree.config)
		}
		if tree.config.FailureDecay != 30 || tree.config.ShutdownTimeout != 10*time.Second {
			t.Errorf("unset fields not defaulted: %+v", tree.config)
		}
	})
}

func TestSupervisorTreeLayers(t *testing.T) {
	tree, _ := NewSupervisorTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})

	layers := map[string]func(suture.Service) suture.ServiceToken{
		"data": tree.AddDataService,
		"sync": tree.AddSyncService,
		"api":  tree.AddAPIService,
	}
	svcs := make(map[string]*mockService)
	for name, add := range layers {
		svcs[name] = newMockService(name)
		add(svcs[name])
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for name, svc := range svcs {
		waitFor(t, name+" service start", func() bool { return svc.StartCount() >= 1 })
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down in time")
	}
}

func TestSupervisorTreeRestartsFailingService(t *testing.T) {
	tree, _ := NewSupervisorTree(testLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	failing := newMockService("reconciler")
	failing.failFor = 2
	stable := newMockService("http-server")
	tree.AddSyncService(failing)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	waitFor(t, "third start", func() bool { return failing.StartCount() >= 3 })
	if stable.StartCount() != 1 {
		t.Errorf("stable service started %d times, want 1", stable.StartCount())
	}

	cancel()
	<-errCh
}

type nopPreloader struct{}

func (nopPreloader) PreloadData(_ context.Context, teacherID string) *records.PreloadReport {
	return &records.PreloadReport{TeacherID: teacherID}
}

type nopCompactor struct{}

func (nopCompactor) Start(context.Context) error { return nil }
func (nopCompactor) Stop()                       {}

func TestInstall(t *testing.T) {
	t.Run("skips nil components", func(t *testing.T) {
		tree, _ := NewSupervisorTree(testLogger(), TreeConfig{})
		if names := tree.Install(Components{}); len(names) != 0 {
			t.Errorf("Install(empty) = %v", names)
		}
	})

	t.Run("places every component", func(t *testing.T) {
		tree, _ := NewSupervisorTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})
		monitor := newMockService("monitor")
		rec := newMockService("reconciler")
		sweeper := newMockService("cache")
		hub := newMockService("hub")

		names := tree.Install(Components{
			Compactor:  nopCompactor{},
			Cache:      sweeper,
			Monitor:    monitor,
			Reconciler: rec,
			Preloader:  nopPreloader{},
			Subscriber: connectivity.NewMonitor(nil, connectivity.Config{}),
			Preload:    services.PreloadOptions{TeacherID: "t-1", OnReconnect: true},
			Hub:        hub,
		})
		want := []string{
			"store-compactor", "cache-sweeper",
			"connectivity-monitor", "reconciler", "preload",
			"websocket-hub",
		}
		if !reflect.DeepEqual(names, want) {
			t.Errorf("Install() = %v, want %v", names, want)
		}

		ctx, cancel := context.WithCancel(context.Background())
		errCh := tree.ServeBackground(ctx)
		for _, svc := range []*mockService{monitor, rec, sweeper, hub} {
			waitFor(t, svc.name+" start", func() bool { return svc.StartCount() >= 1 })
		}
		cancel()
		<-errCh
	})
}
