package api

import (
	"collabd/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// Tracing first, then recovery, then CORS
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", h.Health).Methods("GET")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")

	// Archived edit history
	api.HandleFunc("/documents/{id}/edits", h.ListDocumentEdits).Methods("GET")
	api.HandleFunc("/documents/{id}/edits", h.PruneDocumentEdits).Methods("DELETE")

	// Collaboration transport
	r.HandleFunc("/ws", h.HandleWebSocket).Methods("GET")

	return r
}
