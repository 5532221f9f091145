package stripeapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/xenking/roofgenius/internal/domain/payment"
)

const testSecret = "whsec_test"

func sign(t *testing.T, payload string, at time.Time) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: at,
	})
	return signed.Header
}

const checkoutCompleted = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "amount_total": 5000,
    "currency": "usd",
    "customer_email": null,
    "customer_details": {"email": "buyer@example.com", "name": null},
    "metadata": {"user_id": "u1", "product_id": "p1"}
  }}
}`

func TestVerify_CheckoutCompleted(t *testing.T) {
	v := NewVerifier(testSecret, 0)

	ev, err := v.Verify([]byte(checkoutCompleted), sign(t, checkoutCompleted, time.Now()))
	require.NoError(t, err)

	pc, ok := ev.(*payment.PaymentCompleted)
	require.True(t, ok, "unexpected event %T", ev)
	assert.Equal(t, "evt_1", pc.ID())
	assert.Equal(t, "cs_test_1", pc.SessionID)
	assert.Equal(t, int64(5000), pc.AmountTotal)
	assert.Equal(t, "usd", pc.Currency)
	assert.Equal(t, "buyer@example.com", pc.CustomerEmail)
	assert.Equal(t, payment.Metadata{UserID: "u1", ProductID: "p1"}, pc.Metadata)
}

func TestVerify_ForgedSignature(t *testing.T) {
	v := NewVerifier(testSecret, 0)
	header := sign(t, checkoutCompleted, time.Now())

	tampered := checkoutCompleted[:len(checkoutCompleted)-2] + " }"
	_, err := v.Verify([]byte(tampered), header)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	_, err = NewVerifier("whsec_other", 0).Verify([]byte(checkoutCompleted), header)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	_, err = v.Verify([]byte(checkoutCompleted), "")
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
}

func TestVerify_OutsideTolerance(t *testing.T) {
	v := NewVerifier(testSecret, time.Minute)

	_, err := v.Verify([]byte(checkoutCompleted), sign(t, checkoutCompleted, time.Now().Add(-10*time.Minute)))
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
}

func TestVerify_NoSecret(t *testing.T) {
	v := NewVerifier("", 0)

	_, err := v.Verify([]byte(checkoutCompleted), sign(t, checkoutCompleted, time.Now()))
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
}

func TestVerify_Subscription(t *testing.T) {
	payload := `{"id":"evt_2","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","customer":"cus_1","status":"past_due"}}}`
	v := NewVerifier(testSecret, 0)

	ev, err := v.Verify([]byte(payload), sign(t, payload, time.Now()))
	require.NoError(t, err)

	sc, ok := ev.(*payment.SubscriptionChanged)
	require.True(t, ok)
	assert.Equal(t, payment.TypeSubscriptionUpdated, sc.Type())
	assert.Equal(t, "sub_1", sc.SubscriptionID)
	assert.Equal(t, "cus_1", sc.CustomerID)
	assert.Equal(t, "past_due", sc.Status)
}

func TestVerify_Unrecognized(t *testing.T) {
	payload := `{"id":"evt_3","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`
	v := NewVerifier(testSecret, 0)

	ev, err := v.Verify([]byte(payload), sign(t, payload, time.Now()))
	require.NoError(t, err)

	u, ok := ev.(*payment.Unrecognized)
	require.True(t, ok)
	assert.Equal(t, "invoice.paid", u.ProviderType)
}

func TestVerify_MalformedSignedPayload(t *testing.T) {
	payload := `{"id":"evt_4","type":"checkout.session.completed","data":{"object":{"amount_total":"x"}}}`
	v := NewVerifier(testSecret, 0)

	_, err := v.Verify([]byte(payload), sign(t, payload, time.Now()))
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.NotErrorIs(t, err, payment.ErrInvalidSignature)
}
