// Package health serves liveness and readiness probes backed by periodic
// checks.
//
// A check flips to failing after FailureThreshold consecutive errors and back
// to passing after SuccessThreshold consecutive successes. Optional checks are
// reported but never fail readiness.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Option configures a check.
type Option func(*check)

// WithThresholds sets the consecutive failure and success counts needed to
// change state. Values below 1 are ignored.
func WithThresholds(failure, success int) Option {
	return func(c *check) {
		if failure > 0 {
			c.failureThreshold = failure
		}
		if success > 0 {
			c.successThreshold = success
		}
	}
}

// Optional marks a check as informational: failures are listed in the
// response under "degraded" without failing the probe.
func Optional() Option {
	return func(c *check) { c.optional = true }
}

type check struct {
	name             string
	timeout          time.Duration
	fn               CheckFunc
	failureThreshold int
	successThreshold int
	optional         bool

	passing atomic.Bool
	lastErr atomic.Pointer[string]

	// Touched only by the goroutine running the check.
	fails, oks int
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.fn(ctx); err != nil {
		msg := err.Error()
		c.lastErr.Store(&msg)
		c.oks = 0
		c.fails++
		if c.fails >= c.failureThreshold {
			c.passing.Store(false)
		}
		return
	}
	c.lastErr.Store(nil)
	c.fails = 0
	c.oks++
	if c.oks >= c.successThreshold {
		c.passing.Store(true)
	}
}

func (c *check) reason() string {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return "failing"
}

// Health tracks probe state for a service.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*check
	readiness []*check
	cancel    context.CancelFunc
}

// New creates a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check gating /livez.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...Option) {
	c := newCheck(name, timeout, fn, opts)
	h.mu.Lock()
	h.liveness = append(h.liveness, c)
	h.mu.Unlock()
}

// AddReadinessCheck registers a check gating /readyz.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...Option) {
	c := newCheck(name, timeout, fn, opts)
	h.mu.Lock()
	h.readiness = append(h.readiness, c)
	h.mu.Unlock()
}

func newCheck(name string, timeout time.Duration, fn CheckFunc, opts []Option) *check {
	c := &check{
		name:             name,
		timeout:          timeout,
		fn:               fn,
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, o := range opts {
		o(c)
	}
	c.passing.Store(true)
	return c
}

// Start runs every registered check now and then once per interval until
// Stop is called or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := append(append([]*check(nil), h.liveness...), h.readiness...)
	h.mu.Unlock()

	for _, c := range checks {
		go func() {
			t := time.NewTicker(interval)
			defer t.Stop()
			c.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					c.run(ctx)
				}
			}
		}()
	}
}

// Stop halts background checks. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady sets the manual readiness flag, e.g. false during shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every required
// readiness check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	failing, _ := split(h.snapshot(false))
	return len(failing) == 0
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	failing, degraded := split(h.snapshot(true))
	write(w, failing, degraded)
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failing, degraded := split(h.snapshot(false))
	if !h.ready.Load() {
		failing["_readiness"] = "service is not ready"
	}
	write(w, failing, degraded)
}

func (h *Health) snapshot(liveness bool) []*check {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if liveness {
		return append([]*check(nil), h.liveness...)
	}
	return append([]*check(nil), h.readiness...)
}

func split(checks []*check) (failing, degraded map[string]string) {
	failing = map[string]string{}
	degraded = map[string]string{}
	for _, c := range checks {
		if c.passing.Load() {
			continue
		}
		if c.optional {
			degraded[c.name] = c.reason()
		} else {
			failing[c.name] = c.reason()
		}
	}
	return failing, degraded
}

func write(w http.ResponseWriter, failing, degraded map[string]string) {
	status, code := "ok", http.StatusOK
	if len(failing) > 0 {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(status) })
		writeMap(e, "checks", failing)
		writeMap(e, "degraded", degraded)
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func writeMap(e *jx.Encoder, field string, m map[string]string) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.Field(field, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			for _, k := range keys {
				e.Field(k, func(e *jx.Encoder) { e.Str(m[k]) })
			}
		})
	})
}
