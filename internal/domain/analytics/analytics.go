// Package analytics defines product usage events and their sink.
package analytics

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Event type names emitted by the service.
const (
	EventOrderFulfilled = "order_fulfilled"
)

// ErrInvalidEvent is returned for events without a type or with non-object data.
var ErrInvalidEvent = errors.New("invalid analytics event")

// Event is a single analytics record.
type Event struct {
	Type   string
	UserID string
	// Data is a JSON object. Empty means {}.
	Data       jx.Raw
	OccurredAt time.Time
}

// Validate checks the event shape.
func (e Event) Validate() error {
	if e.Type == "" {
		return errors.Wrap(ErrInvalidEvent, "event type is required")
	}
	if len(e.Data) > 0 && jx.DecodeBytes(e.Data).Next() != jx.Object {
		return errors.Wrap(ErrInvalidEvent, "event data must be an object")
	}
	return nil
}

// DataOrEmpty returns Data, or an empty JSON object.
func (e Event) DataOrEmpty() jx.Raw {
	if len(e.Data) == 0 {
		return jx.Raw("{}")
	}
	return e.Data
}

// Tracker records analytics events.
type Tracker interface {
	Track(ctx context.Context, e Event) error
}
