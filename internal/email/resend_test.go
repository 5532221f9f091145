package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/roofgenius/internal/domain/notify"
)

func TestResendSender_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "orders@roof.example", body["from"])
		assert.Equal(t, []any{"buyer@example.com"}, body["to"])
		assert.Equal(t, "Order #1234abcd confirmed", body["subject"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_123"}`))
	}))
	defer srv.Close()

	s, err := NewResendSender("re_test", srv.URL+"/")
	require.NoError(t, err)

	id, err := s.Send(context.Background(), notify.Email{
		From:    "orders@roof.example",
		To:      "buyer@example.com",
		Subject: "Order #1234abcd confirmed",
		HTML:    "<p>Thanks</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_123", id)
}

func TestResendSender_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"Invalid to field"}`))
	}))
	defer srv.Close()

	s, err := NewResendSender("re_test", srv.URL+"/")
	require.NoError(t, err)

	_, err = s.Send(context.Background(), notify.Email{From: "a@b.c", To: "bad", Subject: "x", HTML: "x"})
	require.Error(t, err)
}
