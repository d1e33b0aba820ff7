// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/gradesync/internal/config"
	"github.com/tomtom215/gradesync/internal/logging"
	"github.com/tomtom215/gradesync/internal/metrics"
)

// maxErrorBodySize limits how much of an error response is read.
const maxErrorBodySize = 64 * 1024

const breakerName = "remote-records"

// IdempotencyHeader carries the key the remote service uses to recognise a
// repeated write. Replays of one queued item always send the same key.
const IdempotencyHeader = "Idempotency-Key"

type idempotencyKeyCtx struct{}

// WithIdempotencyKey returns a context whose create, update and delete
// requests carry key in the Idempotency-Key header.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// IdempotencyKey returns the key attached by WithIdempotencyKey, or "".
func IdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyCtx{}).(string)
	return key
}

// Client talks to the remote records service. Every call except Ping goes
// through a token bucket limiter and a circuit breaker; only transient
// failures count against the breaker.
type Client struct {
	baseURL    string
	token      string
	healthPath string
	maxBody    int64

	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[[]byte]
}

// New creates a client from the remote section of the configuration.
func New(cfg *config.RemoteConfig) *Client {
	maxBody := cfg.MaxResponseBodyBytes
	if maxBody <= 0 {
		maxBody = 16 << 20
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.APIToken,
		healthPath: cfg.HealthPath,
		maxBody:    maxBody,
		http:       &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
	if c.healthPath == "" {
		c.healthPath = "/health"
	}
	c.cb = newBreaker(cfg)
	return c
}

func newBreaker(cfg *config.RemoteConfig) *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(breakerName).Set(0)

	minRequests := cfg.BreakerMinRequests
	ratio := cfg.BreakerFailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= ratio {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
				return true
			}
			return false
		},
		// A rejection means the service is up and answering.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrTransient)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", stateToString(from)).Str("to", stateToString(to)).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})
}

// BreakerState returns the circuit breaker state: closed, half-open or open.
func (c *Client) BreakerState() string {
	return stateToString(c.cb.State())
}

// List retrieves a collection, optionally filtered. The service may answer
// with {"data": [...]} or a bare array; the returned value is always the
// array.
func (c *Client) List(ctx context.Context, resource string, filters map[string]string) (json.RawMessage, error) {
	q := url.Values{}
	for k, v := range filters {
		if v != "" {
			q.Set(k, v)
		}
	}
	body, err := c.do(ctx, http.MethodGet, resource, "/"+resource, q, nil)
	if err != nil {
		return nil, err
	}
	return unwrapData(body, '[')
}

// Get retrieves one record.
func (c *Client) Get(ctx context.Context, resource, id string) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, resource, recordPath(resource, id), nil, nil)
	if err != nil {
		return nil, err
	}
	return unwrapData(body, '{')
}

// Create posts a new record and returns the identity the service assigned,
// or "" if it did not report one.
func (c *Client) Create(ctx context.Context, resource string, payload interface{}) (string, error) {
	body, err := c.do(ctx, http.MethodPost, resource, "/"+resource, nil, payload)
	if err != nil {
		return "", err
	}
	return extractID(body), nil
}

// Update replaces a record and returns the identity echoed by the service,
// if any.
func (c *Client) Update(ctx context.Context, resource, id string, payload interface{}) (string, error) {
	body, err := c.do(ctx, http.MethodPut, resource, recordPath(resource, id), nil, payload)
	if err != nil {
		return "", err
	}
	return extractID(body), nil
}

// Delete removes a record. A 404 counts as success: the record is gone.
func (c *Client) Delete(ctx context.Context, resource, id string) error {
	_, err := c.do(ctx, http.MethodDelete, resource, recordPath(resource, id), nil, nil)
	if rej, ok := IsRejection(err); ok && rej.Status == http.StatusNotFound {
		return nil
	}
	return err
}

// Ping checks that the service answers its health endpoint. It bypasses the
// limiter and the breaker so that it can observe recovery while the circuit
// is open.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, false)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health check returned status %d", ErrTransient, resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, resource, path string, query url.Values, payload interface{}) ([]byte, error) {
	start := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrTransient, err)
	}

	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, query, payload)
	})

	outcome := "success"
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(breakerName).Set(0)
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "rejected_by_breaker"
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
		err = fmt.Errorf("%w: %w", ErrTransient, err)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		outcome = "canceled"
	case IsTransient(err):
		outcome = "transient"
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(breakerName).Set(float64(c.cb.Counts().ConsecutiveFailures))
	default:
		outcome = "rejected"
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	}
	metrics.RecordRemoteRequest(resource, method, outcome, time.Since(start))

	if err != nil {
		logging.Ctx(ctx).Debug().
			Err(err).
			Str("method", method).
			Str("path", path).
			Str("outcome", outcome).
			Msg("Remote request failed")
		return nil, err
	}
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	var reqBody io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, payload != nil)
	if key := IdempotencyKey(ctx); key != "" && method != http.MethodGet {
		req.Header.Set(IdempotencyHeader, key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := readBodyForError(resp.Body)
		if isTransientStatus(resp.StatusCode) {
			return nil, fmt.Errorf("%w: %s %s returned status %d", ErrTransient, method, path, resp.StatusCode)
		}
		return nil, newRejection(resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s %s: %v", ErrTransient, method, path, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrMalformedResponse, c.maxBody)
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func recordPath(resource, id string) string {
	return "/" + resource + "/" + url.PathEscape(id)
}

// readBodyForError reads at most maxErrorBodySize bytes of an error body.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return nil
	}
	return body
}

// unwrapData returns body itself when it already starts with want ('[' or
// '{'), or the "data" member of an enveloped response.
func unwrapData(body []byte, want byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	if trimmed[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if d := bytes.TrimSpace(env.Data); len(d) > 0 && d[0] == want {
			return json.RawMessage(d), nil
		}
	}
	if trimmed[0] == want {
		return json.RawMessage(trimmed), nil
	}
	return nil, fmt.Errorf("%w: unexpected %q", ErrMalformedResponse, trimmed[0])
}

// extractID pulls the record identity out of a create or update response,
// accepting {"id": ...} and {"data": {"id": ...}} with string or numeric IDs.
func extractID(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}

	var doc struct {
		ID   json.RawMessage `json:"id"`
		Data *struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return ""
	}
	raw := doc.ID
	if len(raw) == 0 && doc.Data != nil {
		raw = doc.Data.ID
	}
	return rawID(raw)
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
