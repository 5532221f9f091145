// Package stripeapi adapts the Stripe webhook and REST contracts to the
// payment domain.
package stripeapi

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/xenking/roofgenius/internal/domain/payment"
)

// ErrMalformedEvent is returned when a correctly signed payload cannot be
// decoded.
var ErrMalformedEvent = errors.New("malformed event")

// Verifier checks webhook signatures and decodes events.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier creates a Verifier for the endpoint secret. A zero tolerance
// uses the provider default of five minutes.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

// Verify validates header against payload and returns the typed event.
// Signature failures wrap payment.ErrInvalidSignature.
func (v *Verifier) Verify(payload []byte, header string) (payment.Event, error) {
	if v.secret == "" {
		return nil, errors.Wrap(payment.ErrInvalidSignature, "webhook secret not configured")
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, header, v.secret, v.tolerance); err != nil {
		return nil, errors.Errorf("%w: %v", payment.ErrInvalidSignature, err)
	}

	ev, err := decodeEvent(payload)
	if err != nil {
		return nil, errors.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return ev, nil
}

type envelope struct {
	ID     string
	Type   stripe.EventType
	Object jx.Raw
}

func decodeEvent(payload []byte) (payment.Event, error) {
	var env envelope
	err := jx.DecodeBytes(payload).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id":
			v, err := d.Str()
			env.ID = v
			return err
		case "type":
			v, err := d.Str()
			env.Type = stripe.EventType(v)
			return err
		case "data":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				if string(key) != "object" {
					return d.Skip()
				}
				raw, err := d.Raw()
				env.Object = raw
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	if env.ID == "" || env.Type == "" {
		return nil, errors.New("event id and type are required")
	}

	switch env.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		ev, err := decodeCheckoutSession(env.Object)
		if err != nil {
			return nil, errors.Wrap(err, "decode checkout session")
		}
		ev.EventID = env.ID
		return ev, nil
	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		ev, err := decodeSubscription(env.Object)
		if err != nil {
			return nil, errors.Wrap(err, "decode subscription")
		}
		ev.EventID = env.ID
		ev.Kind = payment.TypeSubscriptionCreated
		if env.Type == stripe.EventTypeCustomerSubscriptionUpdated {
			ev.Kind = payment.TypeSubscriptionUpdated
		}
		return ev, nil
	default:
		return &payment.Unrecognized{EventID: env.ID, ProviderType: string(env.Type)}, nil
	}
}

func decodeCheckoutSession(raw jx.Raw) (*payment.PaymentCompleted, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing data.object")
	}
	var (
		ev           payment.PaymentCompleted
		detailsEmail string
	)
	err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		switch string(key) {
		case "id":
			v, err := d.Str()
			ev.SessionID = v
			return err
		case "customer_email":
			v, err := d.Str()
			ev.CustomerEmail = v
			return err
		case "customer_details":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				if string(key) != "email" || d.Next() == jx.Null {
					return d.Skip()
				}
				v, err := d.Str()
				detailsEmail = v
				return err
			})
		case "amount_total":
			v, err := d.Int64()
			ev.AmountTotal = v
			return err
		case "currency":
			v, err := d.Str()
			ev.Currency = v
			return err
		case "metadata":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				if d.Next() != jx.String {
					return d.Skip()
				}
				v, err := d.Str()
				switch string(key) {
				case "user_id":
					ev.Metadata.UserID = v
				case "product_id":
					ev.Metadata.ProductID = v
				}
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	if ev.SessionID == "" {
		return nil, errors.New("session id is required")
	}
	if ev.CustomerEmail == "" {
		ev.CustomerEmail = detailsEmail
	}
	return &ev, nil
}

func decodeSubscription(raw jx.Raw) (*payment.SubscriptionChanged, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing data.object")
	}
	var ev payment.SubscriptionChanged
	err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		switch string(key) {
		case "id":
			v, err := d.Str()
			ev.SubscriptionID = v
			return err
		case "status":
			v, err := d.Str()
			ev.Status = v
			return err
		case "customer":
			// Either an id or an expanded customer object.
			if d.Next() == jx.String {
				v, err := d.Str()
				ev.CustomerID = v
				return err
			}
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				if string(key) != "id" {
					return d.Skip()
				}
				v, err := d.Str()
				ev.CustomerID = v
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
