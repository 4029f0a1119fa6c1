package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes mounts the page, its form posts and the preview endpoint.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)

	// Routes
	r.Get("/", h.Index)
	r.Get("/previews/{ref}", h.Preview)

	r.Post("/todos/reload", h.Reload)
	r.Post("/todos/new", h.OpenCreate)
	r.Post("/todos/{id}/edit", h.OpenEdit)
	r.Post("/todos/{id}/toggle", h.Toggle)
	r.Post("/todos/{id}/delete", h.Delete)
	r.Post("/todos/{id}/image", h.UploadImage)

	r.Post("/dialog/submit", h.SubmitDialog)
	r.Post("/dialog/image", h.SelectDialogImage)
	r.Post("/dialog/image/remove", h.RemoveDialogImage)
	r.Post("/dialog/close", h.CloseDialog)

	// Error handlers
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
		h.logger.Warn().Str("path", r.URL.Path).Msg("404 not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		h.logger.Warn().Str("path", r.URL.Path).Msg("405 method not allowed")
	})

	return r
}

// Writes a structured JSON error
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
	})
}
