package fulfillment

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/roofgenius/internal/domain/payment"
)

// Outcome is what the router did with an event.
type Outcome string

// Router outcomes.
const (
	OutcomeFulfilled Outcome = "fulfilled"
	OutcomeReplayed  Outcome = "replayed"
	OutcomeLogged    Outcome = "logged"
	OutcomeIgnored   Outcome = "ignored"
)

// Fulfiller completes paid orders.
type Fulfiller interface {
	Fulfill(ctx context.Context, ev *payment.PaymentCompleted) (*Result, error)
}

// Router dispatches verified webhook events by variant.
type Router struct {
	fulfiller Fulfiller
}

// NewRouter creates a Router.
func NewRouter(f Fulfiller) *Router {
	return &Router{fulfiller: f}
}

// Route handles a single event. Only payment completions have effects;
// subscription changes are logged and anything else is ignored.
func (r *Router) Route(ctx context.Context, ev payment.Event) (Outcome, error) {
	lg := zctx.From(ctx).With(
		zap.String("event_id", ev.ID()),
		zap.String("event_type", string(ev.Type())),
	)

	switch e := ev.(type) {
	case *payment.PaymentCompleted:
		res, err := r.fulfiller.Fulfill(ctx, e)
		if err != nil {
			return "", err
		}
		if !res.Completed {
			return OutcomeReplayed, nil
		}
		return OutcomeFulfilled, nil
	case *payment.SubscriptionChanged:
		lg.Info("Subscription changed",
			zap.String("subscription_id", e.SubscriptionID),
			zap.String("customer_id", e.CustomerID),
			zap.String("status", e.Status),
		)
		return OutcomeLogged, nil
	default:
		lg.Debug("Ignoring webhook event")
		return OutcomeIgnored, nil
	}
}
