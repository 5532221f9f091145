package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/roofgenius/internal/domain/analytics"
)

// Track records a client analytics event.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	ev := analytics.Event{OccurredAt: time.Now().UTC()}
	if !h.decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "event_type":
			return optStr(d, &ev.Type)
		case "user_id":
			return optStr(d, &ev.UserID)
		case "event_data":
			if d.Next() == jx.Null {
				return d.Null()
			}
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			ev.Data = append(jx.Raw(nil), raw...)
			return nil
		default:
			return d.Skip()
		}
	}) {
		return
	}

	if err := h.Tracker.Track(r.Context(), ev); err != nil {
		if errors.Is(err, analytics.ErrInvalidEvent) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		internalError(w, r, "tracking failed", err)
		return
	}
	writeStatus(w, "ok")
}
