package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(restoreRL *RateLimiter) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(restoreRL.Middleware).Post("/restore", h.Restore)

		r.Get("/runs", h.RunList)
		r.Get("/runs/{id}", h.RunGet)
		r.Get("/runs/{id}/stages/{stage}.png", h.RunStageImage)
	})

	return r
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if h.DiskCache != nil {
		stats := h.DiskCache.Get()
		resp["disk"] = stats
		if stats.Low(h.Cfg.MinFreePct) {
			resp["status"] = "low_disk"
		}
	}
	jsonOK(w, resp)
}
