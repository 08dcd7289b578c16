package models

import "time"

// Stats is a point-in-time view of the session directory.
type Stats struct {
	ActiveConnections int                      `json:"active_connections"`
	ActiveDocuments   int                      `json:"active_documents"`
	TotalParticipants int                      `json:"total_participants"`
	Documents         map[string]DocumentStats `json:"documents"`
}

type DocumentStats struct {
	Version      int64     `json:"version"`
	Participants int       `json:"participants"`
	EditCount    int       `json:"edit_count"`
	CreatedAt    time.Time `json:"created_at"`
}
