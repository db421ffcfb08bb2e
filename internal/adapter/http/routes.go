package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes attaches the API endpoints to the router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Post("/api/chat", h.HandleChat)
	r.Get("/api/tasks", h.HandleListTasks)
	r.Get("/health", h.HandleHealth)
	if h.Hub != nil {
		r.Get("/ws", h.Hub.HandleWS)
	}
}
