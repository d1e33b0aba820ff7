// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

// Command gradesync is the offline-first data agent that runs on a teacher's
// device. It keeps a durable local copy of the school's reference data,
// accepts grades, attendance, evaluations and student edits while offline,
// and replays them to the remote records service once it is reachable.
//
// # Configuration
//
// Koanf layers, highest priority first:
//   - environment variables (GRADESYNC_REMOTE_URL, LOG_LEVEL, ...)
//   - the file named by -config or CONFIG_PATH, else gradesync.yaml or
//     config.yaml in the working directory
//   - built-in defaults
//
// # Signals
//
// SIGINT and SIGTERM cancel the supervisor tree. The HTTP server drains,
// in-flight replays finish and the store is closed before exit.
//
// # Example
//
//	export GRADESYNC_REMOTE_URL=https://records.school.example
//	export GRADESYNC_REMOTE_TOKEN=...
//	export GRADESYNC_TEACHER_ID=t-42
//	./gradesync
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/gradesync/internal/config"
	"github.com/tomtom215/gradesync/internal/logging"
	"github.com/tomtom215/gradesync/internal/supervisor"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	logging.Info().Str("version", version).Str("remote", cfg.Remote.BaseURL).Msg("Starting gradesync")

	a, err := newApp(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize")
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	tree.Install(a.components())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	if err := a.close(); err != nil {
		logging.Error().Err(err).Msg("Error closing local store")
	}
	logging.Info().Msg("Stopped")
}
