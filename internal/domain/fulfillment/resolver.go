package fulfillment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/roofgenius/internal/domain/product"
)

// LineItemSource reads purchased line items from the payment provider.
type LineItemSource interface {
	// FirstPriceID returns the price id of the session's first line item,
	// or "" when the session has none.
	FirstPriceID(ctx context.Context, sessionID string) (string, error)
}

// LineItemResolutionError explains why a session could not be mapped to a
// product. It is informational: the order is fulfilled without files.
type LineItemResolutionError struct {
	SessionID string
	PriceID   string
	Err       error
}

func (e *LineItemResolutionError) Error() string {
	if e.PriceID != "" {
		return fmt.Sprintf("resolve line item of %s (price %s): %v", e.SessionID, e.PriceID, e.Err)
	}
	return fmt.Sprintf("resolve line item of %s: %v", e.SessionID, e.Err)
}

func (e *LineItemResolutionError) Unwrap() error { return e.Err }

var errNoLineItems = errors.New("session has no line items")

// LineItemResolver maps a checkout session to an internal product through the
// price of its first line item.
type LineItemResolver struct {
	items    LineItemSource
	products product.Repository
}

// NewLineItemResolver creates a LineItemResolver.
func NewLineItemResolver(items LineItemSource, products product.Repository) *LineItemResolver {
	return &LineItemResolver{items: items, products: products}
}

// Resolve returns the product id purchased in the session. Any failure is
// returned as *LineItemResolutionError.
func (r *LineItemResolver) Resolve(ctx context.Context, sessionID string) (string, error) {
	priceID, err := r.items.FirstPriceID(ctx, sessionID)
	if err != nil {
		return "", &LineItemResolutionError{SessionID: sessionID, Err: err}
	}
	if priceID == "" {
		return "", &LineItemResolutionError{SessionID: sessionID, Err: errNoLineItems}
	}

	p, err := r.products.FindByPriceID(ctx, priceID)
	if err != nil {
		return "", &LineItemResolutionError{SessionID: sessionID, PriceID: priceID, Err: err}
	}
	return p.ID, nil
}
