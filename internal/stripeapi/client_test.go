package stripeapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstPriceID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions/cs_test_1/line_items", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Stripe-Version"))
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"li_1","object":"item","price":{"id":"price_1","object":"price"}}],"has_more":false}`))
	}))
	defer srv.Close()

	c := NewClient(Config{SecretKey: "sk_test", BaseURL: srv.URL})
	id, err := c.FirstPriceID(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, "price_1", id)
}

func TestFirstPriceID_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"object":"list","data":[],"has_more":false}`))
	}))
	defer srv.Close()

	id, err := NewClient(Config{SecretKey: "sk_test", BaseURL: srv.URL}).FirstPriceID(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestFirstPriceID_RetriesOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(Config{SecretKey: "sk_test", BaseURL: srv.URL}).FirstPriceID(context.Background(), "cs_test_1")
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFirstPriceID_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such checkout.session"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{SecretKey: "sk_test", BaseURL: srv.URL}).FirstPriceID(context.Background(), "cs_missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "invalid_request_error", apiErr.Type)
	assert.Contains(t, apiErr.Message, "No such checkout.session")
}

func TestCreateCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "idem-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "price_1", r.PostForm.Get("line_items[0][price]"))
		assert.Equal(t, "1", r.PostForm.Get("line_items[0][quantity]"))
		assert.Equal(t, "p1", r.PostForm.Get("metadata[product_id]"))
		assert.Equal(t, "u1", r.PostForm.Get("metadata[user_id]"))
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
	}))
	defer srv.Close()

	s, err := NewClient(Config{SecretKey: "sk_test", BaseURL: srv.URL}).CreateCheckoutSession(context.Background(), CheckoutParams{
		PriceID:        "price_1",
		ProductID:      "p1",
		UserID:         "u1",
		SuccessURL:     "https://roof.example/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      "https://roof.example/cancel",
		IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", s.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", s.URL)
}

func TestCreateCheckoutSession_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(Config{SecretKey: "sk_test", BaseURL: srv.URL}).CreateCheckoutSession(context.Background(), CheckoutParams{PriceID: "price_1"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
