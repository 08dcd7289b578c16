package api

import (
	"context"
	"net/http"

	"collabd/internal/models"
)

// Interfaces the handlers consume, declared here rather than next to their
// implementations.

// StatsProvider reports live collaboration state.
type StatsProvider interface {
	Stats() models.Stats
}

// ConnectionHandler accepts collaboration websocket connections.
type ConnectionHandler interface {
	HandleConnection(w http.ResponseWriter, r *http.Request)
}

// EditHistoryStore reads and prunes archived edits. It is nil when the
// archive is disabled.
type EditHistoryStore interface {
	ListEdits(ctx context.Context, documentID string, limit int) ([]*models.EditOperation, error)
	DeleteEditsBefore(ctx context.Context, documentID string, keepCount int) (int64, error)
}
