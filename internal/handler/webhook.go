package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/roofgenius/internal/domain/payment"
	"github.com/xenking/roofgenius/internal/stripeapi"
)

const signatureHeader = "Stripe-Signature"

// Webhook receives payment provider events. Recognized, ignored and
// undecodable signed events answer 200; a bad signature answers 400 without
// touching state; a failure before the completion gate commits answers 500
// so the provider retries.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	lg := zctx.From(r.Context())

	payload, err := h.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	ev, err := h.Verifier.Verify(payload, r.Header.Get(signatureHeader))
	switch {
	case err == nil:
	case errors.Is(err, payment.ErrInvalidSignature):
		lg.Warn("Webhook signature rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	case errors.Is(err, stripeapi.ErrMalformedEvent):
		// Signed by the provider, so a redelivery would be byte-identical.
		lg.Error("Dropping undecodable webhook event", zap.Error(err))
		writeStatus(w, "ok")
		return
	default:
		internalError(w, r, "webhook verification failed", err)
		return
	}

	outcome, err := h.Router.Route(r.Context(), ev)
	if err != nil {
		lg.Error("Webhook processing failed",
			zap.String("event_id", ev.ID()),
			zap.String("event_type", string(ev.Type())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}
	lg.Info("Webhook handled",
		zap.String("event_id", ev.ID()),
		zap.String("outcome", string(outcome)),
	)
	writeStatus(w, "ok")
}
