// Package payment defines the payment provider events the service reacts to.
//
// Provider payloads are decoded into one of the Event variants at the HTTP
// boundary so downstream code works with typed fields only.
package payment

import "github.com/go-faster/errors"

// ErrInvalidSignature is returned when a webhook payload fails signature or
// timestamp verification.
var ErrInvalidSignature = errors.New("invalid signature")

// EventType tags an Event variant.
type EventType string

// Event types understood by the router.
const (
	TypePaymentCompleted    EventType = "payment_completed"
	TypeSubscriptionCreated EventType = "subscription_created"
	TypeSubscriptionUpdated EventType = "subscription_updated"
	TypeUnrecognized        EventType = "unrecognized"
)

// Event is a decoded webhook event. The concrete type is one of
// *PaymentCompleted, *SubscriptionChanged or *Unrecognized.
type Event interface {
	Type() EventType
	// ID is the provider's event identifier.
	ID() string
}

// Metadata is the subset of checkout metadata the service sets when creating
// sessions.
type Metadata struct {
	UserID    string
	ProductID string
}

// PaymentCompleted is emitted when a checkout session has been paid.
type PaymentCompleted struct {
	EventID       string
	SessionID     string
	CustomerEmail string
	// AmountTotal is expressed in minor currency units.
	AmountTotal int64
	Currency    string
	Metadata    Metadata
}

func (e *PaymentCompleted) Type() EventType { return TypePaymentCompleted }
func (e *PaymentCompleted) ID() string      { return e.EventID }

// SubscriptionChanged is emitted when a subscription is created or updated.
type SubscriptionChanged struct {
	EventID        string
	Kind           EventType
	SubscriptionID string
	CustomerID     string
	Status         string
}

func (e *SubscriptionChanged) Type() EventType { return e.Kind }
func (e *SubscriptionChanged) ID() string      { return e.EventID }

// Unrecognized carries any provider event the service does not handle.
type Unrecognized struct {
	EventID      string
	ProviderType string
}

func (e *Unrecognized) Type() EventType { return TypeUnrecognized }
func (e *Unrecognized) ID() string      { return e.EventID }
