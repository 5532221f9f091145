package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/roofgenius/internal/domain/copilot"
	"github.com/xenking/roofgenius/internal/domain/roof"
)

// Multipart framing allowance on top of the image itself.
const multipartOverhead = 1 << 20

// AnalyzeRoof runs a vision analysis on an uploaded roof photo. The form
// carries "image" and optionally "address" and "analysis_type".
func (h *Handler) AnalyzeRoof(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, roof.MaxImageSize+multipartOverhead)
	if err := r.ParseMultipartForm(roof.MaxImageSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, roof.ErrImageTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "multipart form required")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, fh, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, roof.ErrEmptyImage.Error())
		return
	}
	defer func() { _ = f.Close() }()
	img, err := io.ReadAll(io.LimitReader(f, roof.MaxImageSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable image")
		return
	}

	a, err := h.Analyzer.Analyze(r.Context(), roof.Request{
		Image:       img,
		ContentType: fh.Header.Get("Content-Type"),
		Address:     r.FormValue("address"),
		Type:        r.FormValue("analysis_type"),
	})
	switch {
	case err == nil:
	case errors.Is(err, roof.ErrEmptyImage), errors.Is(err, roof.ErrUnsupportedImage):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, roof.ErrImageTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	default:
		zctx.From(r.Context()).Error("Roof analysis failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeAnalysis(e, a) })
}

func encodeAnalysis(e *jx.Encoder, a *roof.Analysis) {
	costs := func(field string, c roof.CostRange) {
		e.Field(field, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("low", func(e *jx.Encoder) { e.Float64(c.Low.InexactFloat64()) })
				e.Field("high", func(e *jx.Encoder) { e.Float64(c.High.InexactFloat64()) })
			})
		})
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("square_feet", func(e *jx.Encoder) { e.Float64(a.SquareFeet) })
		e.Field("pitch", func(e *jx.Encoder) { e.Str(a.Pitch) })
		e.Field("material", func(e *jx.Encoder) { e.Str(a.Material) })
		e.Field("condition", func(e *jx.Encoder) { e.Str(a.Condition) })
		e.Field("damage_areas", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, d := range a.DamageAreas {
					e.Obj(func(e *jx.Encoder) {
						e.Field("type", func(e *jx.Encoder) { e.Str(d.Type) })
						e.Field("severity", func(e *jx.Encoder) { e.Str(d.Severity) })
						e.Field("location", func(e *jx.Encoder) { e.Str(d.Location) })
						e.Field("area_sqft", func(e *jx.Encoder) { e.Float64(d.AreaSqFt) })
					})
				}
			})
		})
		e.Field("recommendations", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, s := range a.Recommendations {
					e.Str(s)
				}
			})
		})
		e.Field("estimated_remaining_life", func(e *jx.Encoder) { e.Int(a.RemainingLife) })
		e.Field("confidence_scores", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("area_measurement", func(e *jx.Encoder) { e.Float64(a.Confidence.AreaMeasurement) })
				e.Field("material_identification", func(e *jx.Encoder) { e.Float64(a.Confidence.MaterialIdentification) })
				e.Field("damage_assessment", func(e *jx.Encoder) { e.Float64(a.Confidence.DamageAssessment) })
			})
		})
		costs("repair_cost", a.RepairCost)
		costs("replacement_cost", a.ReplacementCost)
		e.Field("model", func(e *jx.Encoder) { e.Str(a.Model) })
		e.Field("fallback", func(e *jx.Encoder) { e.Bool(a.Fallback) })
	})
}

// Copilot answers a chat message in the context of a session.
func (h *Handler) Copilot(w http.ResponseWriter, r *http.Request) {
	var req copilot.Request
	var role string
	if !h.decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "message":
			return optStr(d, &req.Message)
		case "session_id":
			return optStr(d, &req.SessionID)
		case "user_id":
			return optStr(d, &req.UserID)
		case "role":
			return optStr(d, &role)
		default:
			return d.Skip()
		}
	}) {
		return
	}
	req.Role = copilot.ParseRole(role)

	reply, err := h.Assistant.Reply(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, copilot.ErrEmptyMessage), errors.Is(err, copilot.ErrSessionRequired):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		zctx.From(r.Context()).Error("Copilot reply failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "assistant unavailable")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("response", func(e *jx.Encoder) { e.Str(reply.Text) })
			e.Field("session_id", func(e *jx.Encoder) { e.Str(req.SessionID) })
			if reply.Action != "" {
				e.Field("action", func(e *jx.Encoder) { e.Str(reply.Action) })
			}
		})
	})
}
