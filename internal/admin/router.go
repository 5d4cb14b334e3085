package admin

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/logging"
)

// NewRouter builds the admin HTTP surface: exactly the one operator action
// spec.md §4.5 describes. It is deliberately not a query/stats/health API
// (spec.md §1 places those out of scope).
func NewRouter(replayer *Replayer, logger *logging.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(requestLogging(logger))
	r.Use(chimiddleware.Recoverer)

	r.Route("/admin/dlq", func(r chi.Router) {
		r.Post("/{id}/replay", handleReplay(replayer, logger))
	})

	return r
}

type replayRequest struct {
	ForceReprocess bool `json:"force_reprocess"`
}

func handleReplay(replayer *Replayer, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idParam := chi.URLParam(r, "id")
		id, err := strconv.ParseInt(idParam, 10, 64)
		if err != nil {
			http.Error(w, "invalid dead letter id", http.StatusBadRequest)
			return
		}

		var req replayRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}

		result, err := replayer.Replay(r.Context(), id, req.ForceReprocess)
		if err != nil {
			logger.Error("dlq replay failed", map[string]any{"id": id, "error": err.Error()})
			http.Error(w, "replay failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}
}
