package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/roofgenius/internal/domain/product"
	"github.com/xenking/roofgenius/internal/mailinglist"
	"github.com/xenking/roofgenius/internal/stripeapi"
)

// CreateCheckout opens a payment session for a catalog product. The price
// must be the product's configured price. No order is created here; the
// completion webhook records it.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var priceID, productID, userID string
	if !h.decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "price_id":
			return optStr(d, &priceID)
		case "product_id":
			return optStr(d, &productID)
		case "user_id":
			return optStr(d, &userID)
		default:
			return d.Skip()
		}
	}) {
		return
	}
	if priceID == "" || productID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "price_id, product_id and user_id are required")
		return
	}

	p, err := h.Products.GetByID(r.Context(), productID)
	switch {
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusBadRequest, "invalid product")
		return
	case err != nil:
		internalError(w, r, "checkout failed", err)
		return
	}
	if !p.Active || p.PriceID != priceID {
		writeError(w, http.StatusBadRequest, "invalid product")
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = uuid.NewString()
	}
	site := strings.TrimSuffix(h.siteURL, "/")
	sess, err := h.Checkout.CreateCheckoutSession(r.Context(), stripeapi.CheckoutParams{
		PriceID:        priceID,
		ProductID:      productID,
		UserID:         userID,
		SuccessURL:     site + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      site + "/cancel",
		IdempotencyKey: key,
	})
	if err != nil {
		internalError(w, r, "checkout failed", err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(sess.ID) })
			e.Field("url", func(e *jx.Encoder) { e.Str(sess.URL) })
		})
	})
}

// Subscribe adds an email address to the mailing list.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var email string
	if !h.decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key == "email" {
			return optStr(d, &email)
		}
		return d.Skip()
	}) {
		return
	}

	err := h.Mailing.Subscribe(r.Context(), strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, mailinglist.ErrEmailRequired) {
			writeError(w, http.StatusBadRequest, "email required")
			return
		}
		zctx.From(r.Context()).Warn("Mailing list subscribe failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "subscription failed")
		return
	}
	writeStatus(w, "success")
}
