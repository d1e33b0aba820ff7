// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/gradesync/internal/logging"
	"github.com/tomtom215/gradesync/internal/metrics"
)

// Event is one observed connectivity edge.
type Event struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
	Source string    `json:"source"`
}

// Prober checks whether the remote service is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// Config controls probing.
type Config struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration

	// FailureThreshold is how many consecutive failed observations flip an
	// online monitor to offline. One success always flips it back.
	FailureThreshold int

	// AssumeOnline is the state before the first observation.
	AssumeOnline bool
}

type subscriber struct {
	id uint64
	fn func(Event)
}

// Monitor tracks whether the remote service is reachable and notifies
// subscribers once per transition. Repeated observations of the same state
// never notify.
type Monitor struct {
	prober Prober
	config Config

	mu          sync.Mutex
	online      bool
	failures    int
	lastChange  time.Time
	subs        []subscriber
	nextID      uint64
	queue       []Event
	dispatching bool
}

// NewMonitor creates a monitor. prober may be nil if observations only come
// through Report.
func NewMonitor(prober Prober, cfg Config) *Monitor {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 15 * time.Second
	}
	if cfg.ProbeTimeout <= 0 || cfg.ProbeTimeout > cfg.ProbeInterval {
		cfg.ProbeTimeout = cfg.ProbeInterval
	}

	m := &Monitor{
		prober:     prober,
		config:     cfg,
		online:     cfg.AssumeOnline,
		lastChange: time.Now(),
	}
	if cfg.AssumeOnline {
		metrics.ConnectivityOnline.Set(1)
	} else {
		metrics.ConnectivityOnline.Set(0)
	}
	return m
}

// IsOnline returns the current belief about reachability.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// LastChange returns when the state last flipped (or the monitor was created).
func (m *Monitor) LastChange() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastChange
}

// Subscribe registers fn for connectivity edges and returns a function that
// removes it. Callbacks run in subscription order, never while the monitor's
// lock is held, so they may call back into the monitor.
func (m *Monitor) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, s := range m.subs {
				if s.id == id {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Report feeds in one observation. source names the observer for logs,
// e.g. "probe" or "remote".
func (m *Monitor) Report(online bool, source string) {
	m.mu.Lock()

	if online {
		m.failures = 0
	} else {
		m.failures++
	}

	changed := false
	switch {
	case online && !m.online:
		changed = true
	case !online && m.online && m.failures >= m.config.FailureThreshold:
		changed = true
	}
	if !changed {
		m.mu.Unlock()
		return
	}

	m.online = online
	m.lastChange = time.Now()
	m.queue = append(m.queue, Event{Online: online, At: m.lastChange, Source: source})
	if m.dispatching {
		// The goroutine already delivering will pick this edge up next.
		m.mu.Unlock()
		return
	}
	m.dispatching = true
	m.mu.Unlock()

	m.dispatch()
}

// dispatch delivers queued edges in order until the queue is empty.
func (m *Monitor) dispatch() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.dispatching = false
			m.mu.Unlock()
			return
		}
		ev := m.queue[0]
		m.queue = m.queue[1:]
		subs := make([]subscriber, len(m.subs))
		copy(subs, m.subs)
		m.mu.Unlock()

		metrics.RecordConnectivity(ev.Online)
		state := "offline"
		if ev.Online {
			state = "online"
		}
		logging.Info().Str("state", state).Str("source", ev.Source).Msg("Connectivity changed")

		for _, s := range subs {
			m.deliver(s, ev)
		}
	}
}

func (m *Monitor) deliver(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("Connectivity subscriber panicked")
		}
	}()
	s.fn(ev)
}

// Probe runs one health check and reports its result.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.prober == nil {
		return m.IsOnline()
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	err := m.prober.Ping(probeCtx)
	if err != nil && ctx.Err() != nil {
		// Shutting down; not an observation.
		return m.IsOnline()
	}
	if err != nil {
		logging.Debug().Err(err).Msg("Connectivity probe failed")
	}
	m.Report(err == nil, "probe")
	return err == nil
}

// Run probes immediately and then every ProbeInterval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.Probe(ctx)

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
