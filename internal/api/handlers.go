package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"collabd/internal/middleware"

	"github.com/gorilla/mux"
)

const (
	defaultEditLimit = 50
	maxEditLimit     = 1000
)

// Handler serves the HTTP surface around the collaboration engine.
type Handler struct {
	stats     StatsProvider
	wsHandler ConnectionHandler
	edits     EditHistoryStore // nil when the archive is disabled
}

func NewHandler(stats StatsProvider, wsHandler ConnectionHandler, edits EditHistoryStore) *Handler {
	return &Handler{
		stats:     stats,
		wsHandler: wsHandler,
		edits:     edits,
	}
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleConnection(w, r)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Stats())
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListDocumentEdits returns archived edits for a document, oldest first.
func (h *Handler) ListDocumentEdits(w http.ResponseWriter, r *http.Request) {
	if h.edits == nil {
		http.Error(w, "edit archive is disabled", http.StatusServiceUnavailable)
		return
	}

	id := mux.Vars(r)["id"]

	limit := defaultEditLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(parsed, maxEditLimit)
	}

	edits, err := h.edits.ListEdits(r.Context(), id, limit)
	if err != nil {
		middleware.AddSpanError(r.Context(), err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"document_id": id,
		"edits":       edits,
		"limit":       limit,
	})
}

// PruneDocumentEdits deletes all but the newest `keep` archived edits.
func (h *Handler) PruneDocumentEdits(w http.ResponseWriter, r *http.Request) {
	if h.edits == nil {
		http.Error(w, "edit archive is disabled", http.StatusServiceUnavailable)
		return
	}

	id := mux.Vars(r)["id"]

	keep, err := strconv.Atoi(r.URL.Query().Get("keep"))
	if err != nil || keep < 0 {
		http.Error(w, "keep must be a non-negative integer", http.StatusBadRequest)
		return
	}

	deleted, err := h.edits.DeleteEditsBefore(r.Context(), id, keep)
	if err != nil {
		middleware.AddSpanError(r.Context(), err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"document_id": id,
		"deleted":     deleted,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
