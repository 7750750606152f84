package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"promowatch/internal/export"
	"promowatch/internal/model"
	"promowatch/migrations"
)

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.Error("health check", "error", err)
		Error(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	body := map[string]any{"status": "ok"}
	if p, ok := h.store.(dbProvider); ok {
		if v, err := migrations.Version(p.DB()); err == nil {
			body["schema_version"] = v
		}
	}
	JSON(w, http.StatusOK, body)
}

// LatestComparison handles GET /v1/countries/{country}/comparisons/latest.
func (h *Handler) LatestComparison(w http.ResponseWriter, r *http.Request) {
	cc, ok := country(w, r)
	if !ok {
		return
	}
	s, err := h.store.LatestComparison(r.Context(), cc)
	if errors.Is(err, model.ErrNotFound) {
		Error(w, http.StatusNotFound, "no comparison for "+cc)
		return
	}
	if err != nil {
		h.storageError(w, "latest comparison", cc, err)
		return
	}
	JSON(w, http.StatusOK, s)
}

// Stats handles GET /v1/countries/{country}/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	cc, ok := country(w, r)
	if !ok {
		return
	}
	stats, err := h.store.Stats(r.Context(), cc)
	if err != nil {
		h.storageError(w, "stats", cc, err)
		return
	}

	var newCount, removedCount int
	latest, err := h.store.LatestComparison(r.Context(), cc)
	switch {
	case err == nil:
		newCount, removedCount = latest.NewCount, latest.RemovedCount
	case !errors.Is(err, model.ErrNotFound):
		h.storageError(w, "latest comparison", cc, err)
		return
	}

	JSON(w, http.StatusOK, struct {
		*model.Stats
		Insights []string `json:"insights"`
	}{stats, export.Insights(stats, newCount, removedCount)})
}

// RunComparison handles POST /v1/countries/{country}/comparisons?date=&mode=.
// It runs a comparison and responds with the full result.
func (h *Handler) RunComparison(w http.ResponseWriter, r *http.Request) {
	cc, ok := country(w, r)
	if !ok {
		return
	}

	asOf := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := time.Parse(model.DateLayout, raw)
		if err != nil {
			Error(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		asOf = d
	}
	mode := h.comparator.Mode()
	if raw := r.URL.Query().Get("mode"); raw != "" {
		m, err := model.ParseCompareMode(raw)
		if err != nil {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = m
	}

	res, err := h.comparator.CompareWith(r.Context(), cc, asOf, mode)
	if err != nil {
		h.storageError(w, "compare", cc, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := export.WriteJSON(w, res); err != nil {
		h.log.Error("write comparison", "country", cc, "error", err)
	}
}

func (h *Handler) storageError(w http.ResponseWriter, op, cc string, err error) {
	h.log.Error(op, "country", cc, "error", err)
	if errors.Is(err, model.ErrStorageUnavailable) {
		Error(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	Error(w, http.StatusInternalServerError, "internal error")
}

func country(w http.ResponseWriter, r *http.Request) (string, bool) {
	cc := strings.ToUpper(chi.URLParam(r, "country"))
	if len(cc) != 2 || strings.Trim(cc, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") != "" {
		Error(w, http.StatusBadRequest, "country must be a two-letter code")
		return "", false
	}
	return cc, true
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
