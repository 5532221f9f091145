package handler

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/roofgenius/internal/domain/download"
	"github.com/xenking/roofgenius/internal/filestore"
	"github.com/xenking/roofgenius/pkg/httpmiddleware"
)

// Download streams the file behind a token and consumes the token. The token
// is only consumed once storage has answered, so a storage outage leaves it
// usable.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	grant, err := h.Downloads.Authorize(ctx, r.PathValue("token"))
	switch {
	case err == nil:
	case errors.Is(err, download.ErrMalformed):
		writeError(w, http.StatusBadRequest, "invalid token")
		return
	case errors.Is(err, download.ErrNotFound):
		writeError(w, http.StatusNotFound, "invalid or expired download token")
		return
	case errors.Is(err, download.ErrExpired):
		writeError(w, http.StatusGone, "download link expired")
		return
	default:
		internalError(w, r, "download lookup failed", err)
		return
	}

	obj, err := h.Files.Open(ctx, grant.File.URL)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		internalError(w, r, "failed to retrieve file", err)
		return
	}
	defer func() { _ = obj.Body.Close() }()

	if err := h.Downloads.Redeem(ctx, grant, httpmiddleware.ClientIP(r), r.UserAgent()); err != nil {
		if errors.Is(err, download.ErrNotFound) {
			writeError(w, http.StatusNotFound, "invalid or expired download token")
			return
		}
		internalError(w, r, "download failed", err)
		return
	}

	name := grant.File.Name
	if name == "" {
		name = "download"
	}
	hdr := w.Header()
	hdr.Set("Content-Type", obj.ContentType)
	hdr.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	hdr.Set("Cache-Control", "no-store")
	if obj.ContentLength > 0 {
		hdr.Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if n, err := io.Copy(w, obj.Body); err != nil {
		zctx.From(ctx).Warn("Download stream interrupted",
			zap.String("file_id", grant.File.ID),
			zap.Int64("bytes", n),
			zap.Error(err),
		)
	}
}
