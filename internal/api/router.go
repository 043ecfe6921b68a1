package api

import (
	"docsync/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// Middleware runs in order: tracing, recovery, CORS
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	// API routes
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", h.Health).Methods("GET", "OPTIONS")

	// Collaboration introspection (read-only)
	api.HandleFunc("/collaboration/sessions", h.ListSessions).Methods("GET", "OPTIONS")
	api.HandleFunc("/documents/{id}/presence", h.GetPresence).Methods("GET", "OPTIONS")

	// WebSocket routes
	r.HandleFunc("/ws/collaborate", h.HandleCollaborate).Methods("GET")

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods("GET")
	}

	return r
}
