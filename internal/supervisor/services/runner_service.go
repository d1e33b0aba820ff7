// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package services

import (
	"context"
	"errors"
	"fmt"
)

// Runner is a component with a blocking loop that returns when ctx is done:
// the connectivity monitor, the reconciler and the cache sweeper.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerService supervises a Runner under a fixed name.
type RunnerService struct {
	runner Runner
	name   string
}

// NewRunnerService wraps runner.
func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service. Returning before cancellation is treated
// as a failure so suture restarts the loop.
func (s *RunnerService) Serve(ctx context.Context) error {
	err := s.runner.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("exited unexpectedly")
	}
	return fmt.Errorf("%s: %w", s.name, err)
}

func (s *RunnerService) String() string {
	return s.name
}

// ContextHub is satisfied by *websocket.Hub.
type ContextHub interface {
	Serve(ctx context.Context) error
}

// WebSocketHubService supervises the event hub. The hub closes its clients
// when ctx is canceled.
type WebSocketHubService struct {
	hub  ContextHub
	name string
}

// NewWebSocketHubService wraps hub.
func NewWebSocketHubService(hub ContextHub) *WebSocketHubService {
	return &WebSocketHubService{hub: hub, name: "websocket-hub"}
}

// Serve implements suture.Service.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	return w.hub.Serve(ctx)
}

func (w *WebSocketHubService) String() string {
	return w.name
}
