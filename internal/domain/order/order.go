package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no order matches the lookup key.
var ErrNotFound = errors.New("order not found")

// Status is the lifecycle state of an order.
type Status string

// Order statuses. Status only advances in the listed order.
const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCompleted Status = "completed"
)

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusPaid:
		return 1
	case StatusCompleted:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return s.rank() >= 0 }

// CanAdvanceTo reports whether moving from s to next is a forward transition.
// Completed is terminal.
func (s Status) CanAdvanceTo(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() > s.rank()
}

// Order is a purchase keyed by the payment provider's checkout session.
type Order struct {
	ID            string
	SessionID     string
	UserID        string
	ProductID     string
	CustomerEmail string
	Amount        decimal.Decimal
	Status        Status
	FulfilledAt   *time.Time
	CreatedAt     time.Time
}

// Number is the short human-facing order number used in emails.
func (o *Order) Number() string {
	if len(o.ID) <= 8 {
		return o.ID
	}
	return o.ID[:8]
}

// HasProduct reports whether the purchased product has been resolved.
func (o *Order) HasProduct() bool { return o.ProductID != "" }

// PendingOrder holds the fields known when an order is first recorded.
type PendingOrder struct {
	SessionID     string
	UserID        string
	ProductID     string
	CustomerEmail string
	Amount        decimal.Decimal
}

// AmountFromMinor converts an amount in minor currency units (cents) to major units.
func AmountFromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Repository defines persistence operations for orders.
type Repository interface {
	// FindBySession returns the order for a checkout session or ErrNotFound.
	FindBySession(ctx context.Context, sessionID string) (*Order, error)
	// UpsertPending creates a pending order unless one already exists for the
	// session, in which case the existing order is returned unchanged.
	UpsertPending(ctx context.Context, p PendingOrder) (*Order, error)
	// AssignProduct sets the product of an order that has none.
	AssignProduct(ctx context.Context, orderID, productID string) error
	// MarkCompleted atomically moves the order to completed and reports
	// whether this call performed the transition.
	MarkCompleted(ctx context.Context, orderID string) (bool, error)
	// Get returns an order by its internal identifier.
	Get(ctx context.Context, id string) (*Order, error)
	// ListRecent returns the newest orders first.
	ListRecent(ctx context.Context, limit int) ([]Order, error)
	// ListByUser returns a user's newest orders first.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
}
