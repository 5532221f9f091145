package stripeapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v82"
)

// APIError is a non-2xx response from the provider.
type APIError struct {
	Operation  string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("stripe %s: status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("stripe %s: status %d: %s (%s)", e.Operation, e.StatusCode, e.Message, e.Type)
}

// Config holds Client settings.
type Config struct {
	SecretKey string
	// BaseURL overrides the API endpoint, used in tests.
	BaseURL string
	// Timeout bounds each outbound call. Zero means 10s.
	Timeout time.Duration
}

// Client calls the provider API through the SDK. Reads retry once; writes
// never retry and carry an Idempotency-Key instead.
type Client struct {
	reads  *stripe.Client
	writes *stripe.Client
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sdk := func(retries int64) *stripe.Client {
		bc := &stripe.BackendConfig{
			HTTPClient:        &http.Client{Timeout: timeout},
			MaxNetworkRetries: stripe.Int64(retries),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		}
		if cfg.BaseURL != "" {
			bc.URL = stripe.String(strings.TrimSuffix(cfg.BaseURL, "/"))
		}
		return stripe.NewClient(cfg.SecretKey, stripe.WithBackends(stripe.NewBackendsWithConfig(bc)))
	}
	return &Client{
		reads:  sdk(1),
		writes: sdk(0),
	}
}

// FirstPriceID returns the price id of the first line item of a checkout
// session, or "" when the session has no line items.
func (c *Client) FirstPriceID(ctx context.Context, sessionID string) (string, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Limit = stripe.Int64(1)

	for li, err := range c.reads.V1CheckoutSessions.ListLineItems(ctx, params) {
		if err != nil {
			return "", apiError("list line items", err)
		}
		if li.Price == nil {
			return "", nil
		}
		return li.Price.ID, nil
	}
	return "", nil
}

// CheckoutParams describes a one-item payment session.
type CheckoutParams struct {
	PriceID        string
	ProductID      string
	UserID         string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// CheckoutSession is the created session.
type CheckoutSession struct {
	ID  string
	URL string
}

// CreateCheckoutSession creates a payment-mode session for a single price.
// Product and user ids travel in the session metadata so the completion
// webhook can fulfill without a line-item lookup.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.AddMetadata("product_id", p.ProductID)
	if p.UserID != "" {
		params.AddMetadata("user_id", p.UserID)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	s, err := c.writes.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, apiError("create checkout session", err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// apiError converts SDK errors carrying a provider response into APIError.
func apiError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode != 0 {
		return &APIError{
			Operation:  op,
			StatusCode: se.HTTPStatusCode,
			Type:       string(se.Type),
			Message:    se.Msg,
		}
	}
	return errors.Wrap(err, op)
}
