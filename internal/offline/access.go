// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gradesync/internal/cache"
	"github.com/tomtom215/gradesync/internal/config"
	"github.com/tomtom215/gradesync/internal/logging"
	"github.com/tomtom215/gradesync/internal/metrics"
	"github.com/tomtom215/gradesync/internal/models"
	"github.com/tomtom215/gradesync/internal/remote"
)

// ErrNoCachedData is returned for a read that could not reach the remote
// service and has nothing cached to fall back to.
var ErrNoCachedData = errors.New("no cached data available")

// ErrOffline is returned for a write attempted while offline without
// QueueIfOffline. It is a transient failure.
var ErrOffline = fmt.Errorf("%w: remote service is unreachable", remote.ErrTransient)

// Remote is the subset of the remote client the access layer uses.
type Remote interface {
	List(ctx context.Context, resource string, filters map[string]string) (json.RawMessage, error)
	Get(ctx context.Context, resource, id string) (json.RawMessage, error)
	Create(ctx context.Context, resource string, payload interface{}) (string, error)
	Update(ctx context.Context, resource, id string, payload interface{}) (string, error)
	Delete(ctx context.Context, resource, id string) error
}

// Connectivity is the subset of the connectivity monitor the access layer
// uses.
type Connectivity interface {
	IsOnline() bool
	Report(online bool, source string)
}

// Queue accepts writes that could not be sent.
type Queue interface {
	AddToSyncQueue(ctx context.Context, item *models.QueueItem) (*models.QueueItem, error)
}

// Request describes one remote call.
type Request struct {
	// Method is an HTTP method; GET is a read, anything else a write.
	Method   string
	Resource string
	ID       string
	Filters  map[string]string

	// CacheKey overrides the key derived from Resource, ID and Filters.
	CacheKey string

	// Fresh forces a network read even when a fresh cache entry exists.
	Fresh bool

	// QueueIfOffline turns an unreachable write into a queued one.
	QueueIfOffline bool

	// Action defaults from Method (POST create, PUT/PATCH update, DELETE
	// delete). Payload is the record to write; its type selects the queue
	// item kind, and for update and delete it must carry the record ID.
	Action  models.Action
	Payload interface{}
}

// IsRead reports whether the request is a read.
func (r *Request) IsRead() bool {
	return r.Method == "" || r.Method == http.MethodGet
}

func (r *Request) key() string {
	if r.CacheKey != "" {
		return r.CacheKey
	}
	return cache.Key(r.Resource, r.ID, r.Filters)
}

func (r *Request) recordID() string {
	if r.ID != "" {
		return r.ID
	}
	if item, err := models.NewQueueItem(models.ActionCreate, r.Payload); err == nil {
		return item.RecordID()
	}
	return ""
}

func (r *Request) action() models.Action {
	if r.Action != "" {
		return r.Action
	}
	switch r.Method {
	case http.MethodPost:
		return models.ActionCreate
	case http.MethodPut, http.MethodPatch:
		return models.ActionUpdate
	case http.MethodDelete:
		return models.ActionDelete
	}
	return ""
}

// Result is the outcome of Fetch.
type Result struct {
	// Data is the decoded response body of a read.
	Data        json.RawMessage
	IsFromCache bool
	CachedAt    time.Time

	// Queued is set when a write was accepted into the mutation log instead
	// of being sent. It is a deferred success, not an error.
	Queued bool
	Item   *models.QueueItem

	// RemoteID is the identity the service assigned to a created record.
	RemoteID string
}

// Access applies the cache-first policy to every remote call.
type Access struct {
	remote Remote
	cache  *cache.Cache
	conn   Connectivity
	queue  Queue
	policy *config.CacheConfig
}

// New creates an access layer. policy may be nil, which means stale
// fallbacks are never bounded.
func New(r Remote, c *cache.Cache, conn Connectivity, q Queue, policy *config.CacheConfig) *Access {
	if policy == nil {
		policy = &config.CacheConfig{}
	}
	return &Access{remote: r, cache: c, conn: conn, queue: q, policy: policy}
}

// Fetch runs req under the cache-first policy:
//
//  1. Online: reads are served from a fresh cache entry unless Fresh is set,
//     otherwise from the network, caching the result. Writes go to the
//     network.
//  2. Offline, or the call failed transiently: reads fall back to the cached
//     entry for the same key, fresh or stale.
//  3. Writes in the same situation are queued when QueueIfOffline is set.
//  4. Otherwise reads fail with ErrNoCachedData.
//
// Rejections by the remote service are returned as is and never fall back.
func (a *Access) Fetch(ctx context.Context, req Request) (*Result, error) {
	if req.Resource == "" {
		return nil, errors.New("request has no resource")
	}
	if req.IsRead() {
		return a.read(ctx, &req)
	}
	return a.write(ctx, &req)
}

func (a *Access) read(ctx context.Context, req *Request) (*Result, error) {
	key := req.key()
	log := logging.Ctx(ctx)

	var netErr error
	if a.conn.IsOnline() {
		if !req.Fresh {
			if e, ok := a.cache.Get(key); ok {
				return cachedResult(e), nil
			}
		}

		data, err := a.readRemote(ctx, req)
		if err == nil {
			e := a.cache.Set(key, data)
			return &Result{Data: data, CachedAt: e.CachedAt}, nil
		}
		if !remote.IsTransient(err) {
			return nil, err
		}
		a.conn.Report(false, "remote")
		netErr = err
		log.Debug().Err(err).Str("key", key).Msg("Read failed, falling back to cache")
	}

	e, fresh, ok := a.cache.GetStale(key)
	if !ok {
		if netErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNoCachedData, key, netErr)
		}
		return nil, fmt.Errorf("%w: %s", ErrNoCachedData, key)
	}

	if !fresh && a.policy.IsBounded(req.Resource) && a.policy.MaxStale > 0 {
		if age := time.Since(e.CachedAt); age > a.policy.MaxStale {
			log.Warn().
				Str("key", key).
				Dur("age", age).
				Dur("max_stale", a.policy.MaxStale).
				Msg("Cached entry too old to serve")
			return nil, fmt.Errorf("%w: %s: cached copy is %s old", ErrNoCachedData, key, age.Round(time.Second))
		}
	}

	freshness := "stale"
	if fresh {
		freshness = "fresh"
	}
	metrics.CacheFallbacks.WithLabelValues(req.Resource, freshness).Inc()
	return cachedResult(e), nil
}

func (a *Access) readRemote(ctx context.Context, req *Request) (json.RawMessage, error) {
	if req.ID != "" {
		return a.remote.Get(ctx, req.Resource, req.ID)
	}
	return a.remote.List(ctx, req.Resource, req.Filters)
}

func cachedResult(e cache.Entry) *Result {
	data, _ := e.Data.(json.RawMessage)
	return &Result{Data: data, IsFromCache: true, CachedAt: e.CachedAt}
}

func (a *Access) write(ctx context.Context, req *Request) (*Result, error) {
	action := req.action()
	if !action.Valid() {
		return nil, fmt.Errorf("%w: method %q", models.ErrUnknownAction, req.Method)
	}

	if !a.conn.IsOnline() {
		return a.queueOrFail(ctx, req, action, ErrOffline)
	}

	id, err := a.send(ctx, req.Resource, req.recordID(), action, req.Payload)
	if err == nil {
		a.invalidate(req.Resource)
		return &Result{RemoteID: id}, nil
	}
	if !remote.IsTransient(err) {
		return nil, err
	}
	a.conn.Report(false, "remote")
	return a.queueOrFail(ctx, req, action, err)
}

func (a *Access) queueOrFail(ctx context.Context, req *Request, action models.Action, cause error) (*Result, error) {
	if !req.QueueIfOffline || a.queue == nil {
		return nil, cause
	}

	item, err := models.NewQueueItem(action, req.Payload)
	if err != nil {
		return nil, err
	}
	stored, err := a.queue.AddToSyncQueue(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("queue write: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("item_id", stored.ID).
		Str("kind", string(stored.Kind)).
		Str("action", string(stored.Action)).
		Msg("Write queued for later sync")
	return &Result{Queued: true, Item: stored}, nil
}

// Replay sends a queued write to the remote service without any fallback
// and returns the identity the service assigned, if any. The item ID is sent
// as the idempotency key, so a retry after a lost response is recognised by
// the service. Transient failures are also reported to the connectivity
// monitor.
func (a *Access) Replay(ctx context.Context, item *models.QueueItem) (string, error) {
	if err := item.Validate(); err != nil {
		return "", err
	}
	ctx = remote.WithIdempotencyKey(ctx, item.ID)
	id, err := a.send(ctx, item.Kind.Resource(), item.RecordID(), item.Action, item.Payload())
	if err != nil {
		if remote.IsTransient(err) {
			a.conn.Report(false, "remote")
		}
		return "", err
	}
	a.conn.Report(true, "remote")
	a.invalidate(item.Kind.Resource())
	return id, nil
}

func (a *Access) send(ctx context.Context, resource, id string, action models.Action, payload interface{}) (string, error) {
	switch action {
	case models.ActionCreate:
		return a.remote.Create(ctx, resource, payload)
	case models.ActionUpdate:
		if id == "" {
			return "", models.ErrMissingRecordID
		}
		return a.remote.Update(ctx, resource, id, payload)
	case models.ActionDelete:
		if id == "" {
			return "", models.ErrMissingRecordID
		}
		return "", a.remote.Delete(ctx, resource, id)
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnknownAction, action)
	}
}

// invalidate drops cached reads of resource after a successful write.
func (a *Access) invalidate(resource string) {
	a.cache.Delete(resource)
	a.cache.DeletePrefix(resource + "?")
	a.cache.DeletePrefix(resource + "/")
}

// IsOnline reports the connectivity monitor's current belief.
func (a *Access) IsOnline() bool {
	return a.conn.IsOnline()
}
