package http

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the pipeline API under the given router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/process", h.processOnce)
	r.Post("/process/async", h.processAsync)
	r.Post("/poller/start", h.pollerStart)
	r.Post("/poller/stop", h.pollerStop)
	r.Get("/poller", h.pollerStatus)
	r.Get("/stats", h.stats)
	r.Get("/documents", h.documents)
	r.Get("/logs", h.logs)
}
