// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/gradesync/internal/connectivity"
	"github.com/tomtom215/gradesync/internal/logging"
	"github.com/tomtom215/gradesync/internal/metrics"
	"github.com/tomtom215/gradesync/internal/models"
	"github.com/tomtom215/gradesync/internal/remote"
	"github.com/tomtom215/gradesync/internal/store"
)

// Status is the reconciler's pass state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	// StatusError means the last pass hit a local failure. The next pass
	// starts normally.
	StatusError Status = "error"
)

// Pass triggers, used in logs and metrics.
const (
	TriggerManual    = "manual"
	TriggerRetry     = "retry_failed"
	TriggerReconnect = "reconnect"
	TriggerStartup   = "startup"
	TriggerScheduled = "scheduled"
)

// EventSyncCompleted is published after every pass that ran.
const EventSyncCompleted = "sync_completed"

// Replayer sends one queued write to the remote service.
type Replayer interface {
	Replay(ctx context.Context, item *models.QueueItem) (string, error)
}

// Connectivity is the part of the connectivity monitor the reconciler uses.
type Connectivity interface {
	IsOnline() bool
	Subscribe(fn func(connectivity.Event)) (unsubscribe func())
}

// Publisher receives pass summaries.
type Publisher interface {
	Publish(messageType string, data interface{})
}

// Config controls automatic and scheduled passes.
type Config struct {
	SyncOnStartup bool

	// RetryInterval is how often failed items are considered for an
	// automatic retry. Zero disables scheduled retries.
	RetryInterval time.Duration

	// MaxRetries caps automatic retries of a failed item. Items at the cap
	// wait for RetryFailed.
	MaxRetries int

	// RetryBackoff is the base of the exponential backoff between automatic
	// retries of one item; MaxBackoff caps it.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

// Reconciler drains the mutation log into the remote service. At most one
// pass runs at a time; a trigger that arrives during a pass returns a
// skipped, empty result without touching the queue.
type Reconciler struct {
	store    *store.Store
	replayer Replayer
	conn     Connectivity
	events   Publisher
	config   Config

	syncing atomic.Bool

	mu         sync.Mutex
	status     Status
	lastResult *Result
	lastErr    error

	background  sync.WaitGroup
	recoverOnce sync.Once
	now         func() time.Time
}

// New creates a reconciler. conn and events may be nil.
func New(st *store.Store, replayer Replayer, conn Connectivity, events Publisher, cfg Config) *Reconciler {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 30 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Minute
	}
	return &Reconciler{
		store:    st,
		replayer: replayer,
		conn:     conn,
		events:   events,
		config:   cfg,
		status:   StatusIdle,
		now:      time.Now,
	}
}

// Sync runs one pass over every pending item.
func (r *Reconciler) Sync(ctx context.Context) (*Result, error) {
	return r.pass(ctx, TriggerManual)
}

// RetryFailed moves every failed item of every kind back to pending and
// runs a pass. With nothing failed or pending it returns an empty result.
// The reset happens under the same claim as the pass, so a retry that
// arrives during another pass is skipped without touching the queue.
func (r *Reconciler) RetryFailed(ctx context.Context) (*Result, error) {
	if !r.claim(ctx, TriggerRetry) {
		return skippedResult(), nil
	}
	defer r.syncing.Store(false)

	n, err := r.store.ResetFailed(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("reset failed items: %w", err)
	}
	if n > 0 {
		logging.Ctx(ctx).Info().Int("items", n).Msg("Failed items reset for retry")
	}
	return r.run(ctx, TriggerRetry)
}

// IsSyncing reports whether a pass is running.
func (r *Reconciler) IsSyncing() bool {
	return r.syncing.Load()
}

// Status returns the current pass state.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// StatusReport is a point-in-time view of the reconciler.
type StatusReport struct {
	Status     Status  `json:"status"`
	LastResult *Result `json:"last_result,omitempty"`
	LastError  string  `json:"last_error,omitempty"`
}

// Report returns the current state and the last completed pass.
func (r *Reconciler) Report() StatusReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep := StatusReport{Status: r.status, LastResult: r.lastResult}
	if r.lastErr != nil {
		rep.LastError = r.lastErr.Error()
	}
	return rep
}

func (r *Reconciler) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// claim takes the single-flight flag. It returns false, and records the
// skip, when a pass already holds it.
func (r *Reconciler) claim(ctx context.Context, trigger string) bool {
	if r.syncing.CompareAndSwap(false, true) {
		return true
	}
	metrics.RecordSyncSkipped(trigger)
	logging.Ctx(ctx).Debug().Str("trigger", trigger).Msg("Sync pass already running, skipping")
	return false
}

func (r *Reconciler) pass(ctx context.Context, trigger string) (*Result, error) {
	if !r.claim(ctx, trigger) {
		return skippedResult(), nil
	}
	defer r.syncing.Store(false)
	return r.run(ctx, trigger)
}

// run is the body of a pass. The caller holds the single-flight flag.
func (r *Reconciler) run(ctx context.Context, trigger string) (*Result, error) {
	r.setStatus(StatusSyncing)
	metrics.SyncInFlight.Set(1)
	defer metrics.SyncInFlight.Set(0)

	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx).With().Str("trigger", trigger).Logger()

	result := newResult(r.now())
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for _, kind := range models.Kinds() {
		g.Go(func() error {
			kr, itemErrs, err := r.drainKind(ctx, kind)
			mu.Lock()
			defer mu.Unlock()
			result.add(kind, kr, itemErrs)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = r.now().Sub(result.StartedAt)
	err := errors.Join(errs...)

	r.mu.Lock()
	r.lastResult = result
	r.lastErr = err
	if err != nil {
		r.status = StatusError
	} else {
		r.status = StatusIdle
	}
	r.mu.Unlock()

	metrics.RecordSyncPass(trigger, result.Duration, result.Synced, result.Failed, err)
	if _, statsErr := r.store.Stats(ctx); statsErr != nil {
		log.Debug().Err(statsErr).Msg("Queue gauges not refreshed")
	}
	if r.events != nil {
		r.events.Publish(EventSyncCompleted, result.Summary(trigger))
	}

	event := log.Info()
	if err != nil {
		event = log.Error().Err(err)
	} else if result.Failed > 0 {
		event = log.Warn()
	}
	event.
		Int("synced", result.Synced).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Sync pass finished")

	return result, err
}

// drainKind replays the pending items of one kind, oldest first, until a
// round claims nothing, so writes queued while the pass runs are included.
// Only local store failures are returned as err; replay failures are
// recorded on the item.
func (r *Reconciler) drainKind(ctx context.Context, kind models.EntityKind) (KindResult, []ItemError, error) {
	var (
		kr       KindResult
		itemErrs []ItemError
	)

	for {
		items, err := r.store.GetPending(ctx, kind)
		if err != nil {
			return kr, itemErrs, err
		}

		claimedAny := false
		for _, item := range items {
			if ctx.Err() != nil {
				// Shutting down; the rest stay pending.
				return kr, itemErrs, nil
			}

			claimed, err := r.store.Transition(ctx, item.ID, models.StatePending, models.StateSyncing, nil)
			if err != nil {
				if errors.Is(err, store.ErrStateConflict) || errors.Is(err, store.ErrItemNotFound) {
					continue
				}
				return kr, itemErrs, err
			}
			claimedAny = true

			ok, ie, err := r.replay(ctx, claimed)
			if err != nil {
				return kr, itemErrs, err
			}
			if ok {
				kr.Synced++
			} else {
				kr.Failed++
				itemErrs = append(itemErrs, ie)
			}
		}
		if !claimedAny {
			return kr, itemErrs, nil
		}
	}
}

// replay sends one claimed item and records the outcome. Once claimed the
// item always reaches synced or failed, so the replay and the final write
// ignore cancellation of ctx.
func (r *Reconciler) replay(ctx context.Context, item *models.QueueItem) (bool, ItemError, error) {
	replayCtx := context.WithoutCancel(ctx)
	log := logging.Ctx(ctx).With().Str("item_id", item.ID).Str("kind", string(item.Kind)).Logger()

	remoteID, sendErr := r.replayer.Replay(replayCtx, item)
	if sendErr == nil {
		if _, err := r.store.Transition(replayCtx, item.ID, models.StateSyncing, models.StateSynced, func(q *models.QueueItem) {
			q.AdoptRemoteID(remoteID)
		}); err != nil {
			return false, ItemError{}, fmt.Errorf("mark %s synced: %w", item.ID, err)
		}
		metrics.RecordItemOutcome(string(item.Kind), "synced")
		log.Debug().Str("remote_id", remoteID).Msg("Item synced")
		return true, ItemError{}, nil
	}

	failed, err := r.store.Transition(replayCtx, item.ID, models.StateSyncing, models.StateFailed, func(q *models.QueueItem) {
		q.RetryCount++
		q.LastError = sendErr.Error()
	})
	if err != nil {
		return false, ItemError{}, fmt.Errorf("mark %s failed: %w", item.ID, err)
	}

	outcome := "failed"
	if _, rejected := remote.IsRejection(sendErr); rejected {
		outcome = "rejected"
	}
	metrics.RecordItemOutcome(string(item.Kind), outcome)
	log.Warn().Err(sendErr).Int("retry_count", failed.RetryCount).Msg("Item replay failed")
	return false, newItemError(failed, sendErr), nil
}

// retryDue resets failed items whose backoff has elapsed and that have not
// reached MaxRetries, then runs a pass if anything is waiting.
func (r *Reconciler) retryDue(ctx context.Context) {
	if r.conn != nil && !r.conn.IsOnline() {
		return
	}
	if !r.claim(ctx, TriggerScheduled) {
		return
	}
	defer r.syncing.Store(false)

	now := r.now()
	n, err := r.store.ResetFailed(ctx, func(item *models.QueueItem) bool {
		if item.RetryCount >= r.config.MaxRetries {
			return false
		}
		if item.LastAttemptAt == nil {
			return true
		}
		return now.Sub(*item.LastAttemptAt) >= r.backoff(item.RetryCount)
	})
	if err != nil {
		logging.Error().Err(err).Msg("Scheduled retry: failed to reset items")
		return
	}

	pending, err := r.store.List(ctx, "", models.StatePending)
	if err != nil {
		logging.Error().Err(err).Msg("Scheduled retry: failed to list pending items")
		return
	}
	if len(pending) == 0 {
		return
	}
	logging.Debug().Int("reset", n).Int("pending", len(pending)).Msg("Scheduled retry starting pass")
	if _, err := r.run(ctx, TriggerScheduled); err != nil {
		logging.Error().Err(err).Msg("Scheduled sync pass failed")
	}
}

// backoff is base * 2^attempts, capped at MaxBackoff.
func (r *Reconciler) backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 30 {
		return r.config.MaxBackoff
	}
	d := r.config.RetryBackoff << uint(attempts)
	if d <= 0 || d > r.config.MaxBackoff {
		return r.config.MaxBackoff
	}
	return d
}

// Trigger starts a pass in the background. The outcome is only logged.
func (r *Reconciler) Trigger(ctx context.Context, trigger string) {
	r.background.Add(1)
	go func() {
		defer r.background.Done()
		if _, err := r.pass(ctx, trigger); err != nil {
			logging.Error().Err(err).Str("trigger", trigger).Msg("Background sync pass failed")
		}
	}()
}

// Watch starts a background pass on every offline to online edge until the
// returned function is called.
func (r *Reconciler) Watch(ctx context.Context) (stop func()) {
	if r.conn == nil {
		return func() {}
	}
	return r.conn.Subscribe(func(ev connectivity.Event) {
		if ev.Online {
			r.Trigger(ctx, TriggerReconnect)
		}
	})
}

// Run is the reconciler's service body. It hands items interrupted by a
// previous crash back to the queue, syncs on every offline to online edge
// and runs scheduled retries until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	r.recoverOnce.Do(func() {
		if _, err := r.store.RecoverInterrupted(ctx); err != nil {
			logging.Error().Err(err).Msg("Failed to recover interrupted items")
		}
	})

	stop := r.Watch(ctx)
	defer stop()

	if r.config.SyncOnStartup && (r.conn == nil || r.conn.IsOnline()) {
		r.Trigger(ctx, TriggerStartup)
	}

	var tick <-chan time.Time
	if r.config.RetryInterval > 0 {
		ticker := time.NewTicker(r.config.RetryInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			r.background.Wait()
			return ctx.Err()
		case <-tick:
			r.retryDue(ctx)
		}
	}
}

// Wait blocks until background passes started by Trigger have finished.
func (r *Reconciler) Wait() {
	r.background.Wait()
}
