package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinicvoice-core/internal/http/middleware"
)

// Mount builds the full voice-agent-facing router: API-key auth, a hard
// wall-clock deadline per request, then the operation routes.
func Mount(core *CoreContext, apiKey string) chi.Router {
	h := NewHandler(core)

	r := chi.NewRouter()
	r.Use(middleware.APIKey(apiKey))
	r.Use(deadlineMiddleware(core.Deadline))
	r.Mount("/", h.Routes())
	return r
}

func deadlineMiddleware(deadline time.Duration) func(http.Handler) http.Handler {
	if deadline <= 0 {
		deadline = 25 * time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), deadline)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
