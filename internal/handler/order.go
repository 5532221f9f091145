package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/roofgenius/internal/domain/auth"
	"github.com/xenking/roofgenius/internal/domain/download"
	"github.com/xenking/roofgenius/internal/domain/order"
)

const adminOrderLimit = 20

// GetOrder lists the downloads of the order created for a checkout session.
// Orders that are not completed yet have no downloads.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.FindBySession(r.Context(), r.PathValue("session_id"))
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
		return
	case err != nil:
		internalError(w, r, "order lookup failed", err)
		return
	}

	var links []download.Link
	if o.Status == order.StatusCompleted {
		if links, err = h.Downloads.Links(r.Context(), o.ID); err != nil {
			internalError(w, r, "order lookup failed", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
			e.Field("downloads", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, l := range links {
						e.Obj(func(e *jx.Encoder) {
							e.Field("file_name", func(e *jx.Encoder) { e.Str(l.FileName) })
							e.Field("download_url", func(e *jx.Encoder) { e.Str(l.URL) })
						})
					}
				})
			})
		})
	})
}

// AdminOrders lists the most recent orders. Requires an admin API key.
func (h *Handler) AdminOrders(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, auth.ScopeAdmin) {
		return
	}
	orders, err := h.Orders.ListRecent(r.Context(), adminOrderLimit)
	if err != nil {
		internalError(w, r, "list orders failed", err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orders", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range orders {
						encodeOrder(e, &orders[i])
					}
				})
			})
		})
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("session_id", func(e *jx.Encoder) { e.Str(o.SessionID) })
		e.Field("user_id", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("product_id", func(e *jx.Encoder) { e.Str(o.ProductID) })
		e.Field("amount", func(e *jx.Encoder) { e.Str(o.Amount.StringFixed(2)) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
		if o.FulfilledAt != nil {
			e.Field("fulfilled_at", func(e *jx.Encoder) { e.Str(o.FulfilledAt.UTC().Format(time.RFC3339)) })
		}
	})
}
