//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestRequestID_Generated(t *testing.T) {
	resp := doGet(t, "/livez")
	defer resp.Body.Close()

	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID header not present")
	}
}

func TestRequestID_Echoed(t *testing.T) {
	req := newRequest(t, http.MethodGet, "/livez", nil)
	req.Header.Set("X-Request-ID", "rg-request-12345")

	resp := do(t, req)
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "rg-request-12345" {
		t.Errorf("X-Request-ID: got %q, want %q", got, "rg-request-12345")
	}
}

func TestCORS_Preflight(t *testing.T) {
	req := newRequest(t, http.MethodOptions, "/api/checkout", nil)
	req.Header.Set("Origin", "https://myroofgenius.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, Idempotency-Key")

	resp := do(t, req)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusNoContent)

	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("Access-Control-Allow-Origin header not present")
	}
	if resp.Header.Get("Access-Control-Allow-Methods") == "" {
		t.Error("Access-Control-Allow-Methods header not present")
	}
}

func TestRateLimit_Headers(t *testing.T) {
	resp := doPost(t, "/api/search", map[string]string{"query": "checklist"})
	defer resp.Body.Close()

	if resp.Header.Get("X-RateLimit-Limit") == "" {
		t.Error("X-RateLimit-Limit header not present")
	}
	if resp.Header.Get("X-RateLimit-Remaining") == "" {
		t.Error("X-RateLimit-Remaining header not present")
	}
}

func TestRateLimit_WebhookExempt(t *testing.T) {
	req := newRequest(t, http.MethodPost, "/api/webhook", nil)
	resp := do(t, req)
	defer resp.Body.Close()

	if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "" {
		t.Errorf("webhook should bypass the limiter, got X-RateLimit-Limit %q", limit)
	}
}
