package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"shadowsentry/internal/http/handlers"
	"shadowsentry/internal/http/middleware"
	"shadowsentry/internal/lib/jwt"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth      *handlers.AuthHandler
	Incidents *handlers.IncidentHandler
	Watchlist *handlers.WatchlistHandler
	Feeds     *handlers.FeedHandler
}

// NewRouter builds the API surface. Auth endpoints are public; everything
// else requires a valid access token.
func NewRouter(signer *jwt.Signer, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Auth.HandleRegister)
			r.Post("/login", h.Auth.HandleLogin)
			r.Post("/refresh", h.Auth.HandleRefresh)
			r.Post("/logout", h.Auth.HandleLogout)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authenticate(signer))
				r.Get("/me", h.Auth.HandleMe)
				r.Get("/sessions", h.Auth.HandleSessions)
				r.Post("/sessions/{id}/revoke", h.Auth.HandleRevokeSession)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(signer))

			r.Route("/incidents", func(r chi.Router) {
				r.Post("/ingest", h.Incidents.HandleIngest)
				r.Post("/ingest/batch", h.Incidents.HandleIngestBatch)
				r.Get("/search", h.Incidents.HandleSearch)
				r.Get("/risk", h.Incidents.HandleRisk)
			})

			r.Route("/watchlist", func(r chi.Router) {
				r.Post("/", h.Watchlist.HandleAdd)
				r.Get("/", h.Watchlist.HandleList)
				r.Delete("/{id}", h.Watchlist.HandleRemove)
			})

			r.Post("/feeds/scan", h.Feeds.HandleScan)
		})
	})

	return r
}
