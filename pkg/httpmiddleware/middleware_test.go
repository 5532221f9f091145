package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestWrapOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Wrap(okHandler, mark("outer"), mark("inner"))
	serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "192.0.2.7")
	assert.Equal(t, "192.0.2.7", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.2")
	assert.Equal(t, "203.0.113.9", ClientIP(r))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "abc-123")
	w = serve(h, r)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	r.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	serve(h, r)
	assert.NotEqual(t, strings.Repeat("x", 200), seen)
}

func TestInjectLoggerAndLogRequests(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("inside")
		w.WriteHeader(http.StatusCreated)
	}), RequestID(), InjectLogger(zap.New(core)), LogRequests("/healthz"))

	r := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	r.Header.Set("X-Request-ID", "req-1")
	serve(h, r)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "inside", entries[0].Message)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "Request", entries[1].Message)
	assert.EqualValues(t, http.StatusCreated, entries[1].ContextMap()["status"])

	serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, 3, logs.Len(), "quiet path logs only the handler line")
}

func TestRecovery(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	h := CORS(CORSConfig{AllowOrigins: []string{"https://RoofGenius.com"}, MaxAge: 600})(okHandler)

	pre := httptest.NewRequest(http.MethodOptions, "/api/checkout", nil)
	pre.Header.Set("Origin", "https://roofgenius.com")
	pre.Header.Set("Access-Control-Request-Method", http.MethodPost)
	pre.Header.Set("Access-Control-Request-Headers", "content-type")
	w := serve(h, pre)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://RoofGenius.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "content-type", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))

	other := httptest.NewRequest(http.MethodGet, "/api/products/search", nil)
	other.Header.Set("Origin", "https://evil.example")
	w = serve(h, other)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	open := CORS(CORSConfig{})(okHandler)
	w = serve(open, other)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMaintenance(t *testing.T) {
	on := true
	h := Maintenance(func() bool { return on }, "/healthz", "/readyz", "/api/webhook")(okHandler)

	w := serve(h, httptest.NewRequest(http.MethodGet, "/api/order/cs_1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "300", w.Header().Get("Retry-After"))

	w = serve(h, httptest.NewRequest(http.MethodPost, "/api/webhook", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	on = false
	w = serve(h, httptest.NewRequest(http.MethodGet, "/api/order/cs_1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInstrument(t *testing.T) {
	mw, err := Instrument(tracenoop.NewTracerProvider(), noop.NewMeterProvider(), func(r *http.Request) string {
		return r.URL.Path
	})
	require.NoError(t, err)

	w := serve(mw(okHandler), httptest.NewRequest(http.MethodGet, "/api/products/search", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := RateLimit(ctx, RateLimitConfig{
		Max:    2,
		Window: time.Minute,
		Skip:   func(r *http.Request) bool { return r.URL.Path == "/api/webhook" },
	})(okHandler)

	req := func(path string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, path, nil)
		r.RemoteAddr = "198.51.100.4:1234"
		return serve(h, r)
	}

	assert.Equal(t, http.StatusOK, req("/api/subscribe").Code)
	assert.Equal(t, http.StatusOK, req("/api/subscribe").Code)

	w := req("/api/subscribe")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())

	for range 5 {
		assert.Equal(t, http.StatusOK, req("/api/webhook").Code)
	}
}

func TestLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	l.now = func() time.Time { return now }

	for range 4 {
		_, _, ok := l.take("k")
		require.True(t, ok)
	}
	_, _, ok := l.take("k")
	require.False(t, ok)

	// Halfway through the next window the previous four count as two.
	now = now.Add(90 * time.Second)
	_, _, ok = l.take("k")
	require.True(t, ok)
	_, _, ok = l.take("k")
	require.True(t, ok)
	_, _, ok = l.take("k")
	require.False(t, ok)

	now = now.Add(5 * time.Minute)
	l.sweep()
	assert.Empty(t, l.keys)
}
