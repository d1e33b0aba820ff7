// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package services

import (
	"context"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/gradesync/internal/connectivity"
	"github.com/tomtom215/gradesync/internal/logging"
	"github.com/tomtom215/gradesync/internal/records"
)

// Preloader is satisfied by *records.Service.
type Preloader interface {
	PreloadData(ctx context.Context, teacherID string) *records.PreloadReport
}

// Subscriber is satisfied by *connectivity.Monitor.
type Subscriber interface {
	Subscribe(fn func(connectivity.Event)) (unsubscribe func())
}

// PreloadOptions selects when the preload service warms the local store.
type PreloadOptions struct {
	TeacherID   string
	OnStartup   bool
	OnReconnect bool
}

// PreloadService refreshes a teacher's reference data when the agent starts
// and each time the remote service becomes reachable again.
type PreloadService struct {
	preloader Preloader
	conn      Subscriber
	opts      PreloadOptions
	name      string
}

// NewPreloadService creates the service. conn may be nil, which disables
// reconnect preloads.
func NewPreloadService(preloader Preloader, conn Subscriber, opts PreloadOptions) *PreloadService {
	return &PreloadService{preloader: preloader, conn: conn, opts: opts, name: "preload"}
}

// Serve implements suture.Service. Without a teacher or any trigger it
// tells suture not to restart it.
func (s *PreloadService) Serve(ctx context.Context) error {
	reconnect := s.opts.OnReconnect && s.conn != nil
	if s.opts.TeacherID == "" || (!s.opts.OnStartup && !reconnect) {
		return suture.ErrDoNotRestart
	}

	// Subscribers run inside the monitor's Report call; never block there.
	kick := make(chan struct{}, 1)
	if reconnect {
		unsubscribe := s.conn.Subscribe(func(ev connectivity.Event) {
			if !ev.Online {
				return
			}
			select {
			case kick <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()
	}

	if s.opts.OnStartup {
		s.preload(ctx, "startup")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-kick:
			s.preload(ctx, "reconnect")
		}
	}
}

func (s *PreloadService) preload(ctx context.Context, trigger string) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	report := s.preloader.PreloadData(ctx, s.opts.TeacherID)
	if report == nil {
		return
	}
	failed := report.FailedCollections()
	logging.Ctx(ctx).Info().
		Str("trigger", trigger).
		Str("teacher_id", s.opts.TeacherID).
		Int("classes", report.Classes).
		Int("students", report.Students).
		Strs("failed", failed).
		Msg("Preload finished")
}

func (s *PreloadService) String() string {
	return s.name
}
