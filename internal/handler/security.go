package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/roofgenius/internal/domain/auth"
)

const apiKeyHeader = "X-API-Key"

// authorize checks the request API key for scope and writes the error
// response when it is not allowed.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, scope string) bool {
	info, err := h.Keys.Authenticate(r.Context(), r.Header.Get(apiKeyHeader), scope)
	switch {
	case err == nil:
		zctx.From(r.Context()).Debug("API key accepted",
			zap.String("key_name", info.Name),
			zap.String("scope", scope),
		)
		return true
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		internalError(w, r, "authentication failed", err)
	}
	return false
}
