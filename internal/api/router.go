// Package api serves stored comparisons and statistics over HTTP for the
// dashboard.
package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"promowatch/internal/compare"
	"promowatch/internal/storage"
)

// Handler holds all API handler state.
type Handler struct {
	store      storage.Storage
	comparator *compare.Comparator
	log        *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(store storage.Storage, comparator *compare.Comparator, log *slog.Logger) *Handler {
	return &Handler{store: store, comparator: comparator, log: log}
}

// NewRouter returns a router with the common middleware and all routes mounted.
func (h *Handler) NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(h.requestLog)
	h.Routes(r)
	return r
}

// Routes mounts the health check and the v1 API.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.Health)

	r.Route("/v1/countries/{country}", func(r chi.Router) {
		r.Get("/comparisons/latest", h.LatestComparison)
		r.Post("/comparisons", h.RunComparison)
		r.Get("/stats", h.Stats)
	})
}

func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

// dbProvider is implemented by stores backed by database/sql.
type dbProvider interface {
	DB() *sql.DB
}
