package models

import (
	"encoding/json"
	"time"
)

// PresenceSnapshot is the transport-safe view of one connected user.
// It is embedded in USER_JOINED and SYNC_RESPONSE payloads.
type PresenceSnapshot struct {
	ID              string          `json:"id"`
	Username        string          `json:"username"`
	SessionID       string          `json:"session_id"`
	ConnectedAt     time.Time       `json:"connected_at"`
	LastSeen        time.Time       `json:"last_seen"`
	CurrentDocument *string         `json:"current_document"`
	CursorPosition  json.RawMessage `json:"cursor_position"`
	SelectionRange  json.RawMessage `json:"selection_range"`
	IsTyping        bool            `json:"is_typing"`
}

// CursorData is the cursor/selection/typing triple carried by DOCUMENT_CURSOR.
// Position and Selection are opaque to the server.
type CursorData struct {
	Position  json.RawMessage `json:"position,omitempty"`
	Selection json.RawMessage `json:"selection,omitempty"`
	IsTyping  bool            `json:"is_typing"`
}
