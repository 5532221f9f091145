//go:build integration

package integration

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

func checkoutCompleted(eventID, sessionID, productID string) []byte {
	return fmt.Appendf(nil, `{
  "id": %q,
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": %q,
    "object": "checkout.session",
    "amount_total": 4900,
    "currency": "usd",
    "customer_email": null,
    "customer_details": {"email": "buyer@example.com"},
    "metadata": {"user_id": "user-integration", "product_id": %q}
  }}
}`, eventID, sessionID, productID)
}

func postWebhook(t *testing.T, payload []byte, signature string) *http.Response {
	t.Helper()

	req := newRequest(t, http.MethodPost, "/api/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature)
	return do(t, req)
}

func signed(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	}).Header
}

func TestWebhook_ForgedSignature(t *testing.T) {
	payload := checkoutCompleted("evt_forged", "cs_forged", "roof-inspection-checklist")
	forged := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_someone_else",
		Timestamp: time.Now(),
	}).Header

	resp := postWebhook(t, payload, forged)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)

	// Nothing was recorded for the forged session.
	order := doGet(t, "/api/order/cs_forged")
	defer order.Body.Close()
	expectStatus(t, order, http.StatusNotFound)
}

func TestWebhook_MissingSignature(t *testing.T) {
	resp := postWebhook(t, []byte(`{}`), "")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestFulfillment_EndToEnd(t *testing.T) {
	session := fmt.Sprintf("cs_test_%d", time.Now().UnixNano())
	payload := checkoutCompleted("evt_"+session, session, "roof-inspection-checklist")

	resp := postWebhook(t, payload, signed(payload))
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	status := lookupOrder(t, session)
	if status.Status != "completed" {
		t.Fatalf("status: got %q, want completed", status.Status)
	}
	if len(status.Downloads) != 1 {
		t.Fatalf("expected 1 download, got %d", len(status.Downloads))
	}
	link := status.Downloads[0]
	if link.FileName != "Roof Inspection Checklist.pdf" {
		t.Errorf("file_name: got %q", link.FileName)
	}

	// A redelivery is acknowledged without issuing new tokens.
	resp = postWebhook(t, payload, signed(payload))
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	again := lookupOrder(t, session)
	if len(again.Downloads) != 1 || again.Downloads[0].DownloadURL != link.DownloadURL {
		t.Fatalf("redelivery changed downloads: %+v", again.Downloads)
	}

	u, err := url.Parse(link.DownloadURL)
	if err != nil {
		t.Fatalf("parse download url: %v", err)
	}
	if !strings.HasPrefix(u.Path, "/api/download/") {
		t.Fatalf("unexpected download path %q", u.Path)
	}

	file := doGet(t, u.Path)
	expectStatus(t, file, http.StatusOK)
	if cd := file.Header.Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") {
		t.Errorf("Content-Disposition: got %q", cd)
	}
	body, err := io.ReadAll(file.Body)
	file.Body.Close()
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if !bytes.Contains(body, []byte("Roof Inspection Checklist")) {
		t.Errorf("unexpected file body %q", body)
	}

	// Tokens are single use.
	second := doGet(t, u.Path)
	defer second.Body.Close()
	expectStatus(t, second, http.StatusNotFound)
}

func TestFulfillment_AdminSeesOrder(t *testing.T) {
	session := fmt.Sprintf("cs_admin_%d", time.Now().UnixNano())
	payload := checkoutCompleted("evt_"+session, session, "storm-damage-estimator")

	resp := postWebhook(t, payload, signed(payload))
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	status := lookupOrder(t, session)
	if len(status.Downloads) != 2 {
		t.Fatalf("expected 2 downloads, got %d", len(status.Downloads))
	}

	admin := doGetWithKey(t, "/api/admin/orders", adminKey)
	defer admin.Body.Close()
	expectStatus(t, admin, http.StatusOK)

	body := decodeJSON[adminOrdersResponse](t, admin)
	for _, o := range body.Orders {
		if o.SessionID != session {
			continue
		}
		if o.Status != "completed" {
			t.Errorf("status: got %q", o.Status)
		}
		if o.Amount != "49.00" {
			t.Errorf("amount: got %q, want 49.00", o.Amount)
		}
		if o.ProductID != "storm-damage-estimator" {
			t.Errorf("product_id: got %q", o.ProductID)
		}
		return
	}
	t.Fatalf("order %s missing from admin listing", session)
}

func TestFulfillment_ConcurrentRedelivery(t *testing.T) {
	session := fmt.Sprintf("cs_race_%d", time.Now().UnixNano())
	payload := checkoutCompleted("evt_"+session, session, "storm-damage-estimator")

	const deliveries = 8
	var (
		wg    sync.WaitGroup
		codes = make([]int, deliveries)
	)
	for i := range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPost, baseURL+"/api/webhook", bytes.NewReader(payload))
			if err != nil {
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Stripe-Signature", signed(payload))
			resp, err := httpClient.Do(req)
			if err != nil {
				return
			}
			codes[i] = resp.StatusCode
			resp.Body.Close()
		}()
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("delivery %d: got status %d", i, code)
		}
	}

	status := lookupOrder(t, session)
	if status.Status != "completed" {
		t.Fatalf("status: got %q, want completed", status.Status)
	}
	// One token per file of the storm estimator, however many deliveries won.
	if len(status.Downloads) != 2 {
		t.Fatalf("expected 2 downloads, got %d: %+v", len(status.Downloads), status.Downloads)
	}
}

func TestFulfillment_ProductMissingFromCatalog(t *testing.T) {
	session := fmt.Sprintf("cs_gone_%d", time.Now().UnixNano())
	payload := checkoutCompleted("evt_"+session, session, "does-not-exist")

	resp := postWebhook(t, payload, signed(payload))
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	status := lookupOrder(t, session)
	if status.Status != "completed" {
		t.Fatalf("status: got %q, want completed", status.Status)
	}
	if len(status.Downloads) != 0 {
		t.Fatalf("expected no downloads, got %+v", status.Downloads)
	}
}

func TestOrderLookup_Unknown(t *testing.T) {
	resp := doGet(t, "/api/order/cs_never_paid")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusNotFound)
}

func TestDownload_Errors(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"malformed", "short", http.StatusBadRequest},
		{"unknown", "AbCdEfGhIjKlMnOpQrStUvWxYz012345", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doGet(t, "/api/download/"+tt.token)
			defer resp.Body.Close()
			expectStatus(t, resp, tt.want)
		})
	}
}

func lookupOrder(t *testing.T, session string) orderStatusResponse {
	t.Helper()

	resp := doGet(t, "/api/order/"+session)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
	return decodeJSON[orderStatusResponse](t, resp)
}
