package httpmiddleware

import (
	"net/http"
	"strings"
)

// Maintenance answers 503 while enabled reports true. Paths with one of the
// allow prefixes are still served.
func Maintenance(enabled func() bool, allow ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled() {
				next.ServeHTTP(w, r)
				return
			}
			for _, p := range allow {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("Retry-After", "300")
			writeError(w, http.StatusServiceUnavailable, "service is under maintenance")
		})
	}
}
