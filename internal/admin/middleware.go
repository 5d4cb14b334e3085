// Package admin exposes the one operator-facing surface in scope (spec.md
// §4.5: DLQ replay) — never a query/stats/health API, which spec.md §1
// places out of scope.
package admin

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/logging"
)

// requestLogging logs start/completion of every admin request, keyed by
// chi's own request-id middleware rather than the teacher's ad hoc
// (and undefined) RequestIDKey.
func requestLogging(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := chimiddleware.GetReqID(r.Context())

			logger.Info("admin request started", map[string]any{
				"request_id": reqID,
				"method":     r.Method,
				"path":       r.URL.Path,
			})

			next.ServeHTTP(w, r)

			logger.Info("admin request completed", map[string]any{
				"request_id":  reqID,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		})
	}
}
