package models

import (
	"encoding/json"
	"time"
)

// MessageType is the `type` discriminator of every frame on the wire.
type MessageType string

const (
	// Server -> client
	MessageTypeUserJoined   MessageType = "USER_JOINED"
	MessageTypeUserLeft     MessageType = "USER_LEFT"
	MessageTypeSyncResponse MessageType = "SYNC_RESPONSE"
	MessageTypeError        MessageType = "ERROR"

	// Client -> server
	MessageTypeDocumentOpen  MessageType = "DOCUMENT_OPEN"
	MessageTypeDocumentClose MessageType = "DOCUMENT_CLOSE"

	// Both directions
	MessageTypeDocumentEdit   MessageType = "DOCUMENT_EDIT"
	MessageTypeDocumentCursor MessageType = "DOCUMENT_CURSOR"
	MessageTypeHeartbeat      MessageType = "HEARTBEAT"
)

// Envelope is the union of every field a client may send. The router
// resolves Type and then checks the fields that type requires.
type Envelope struct {
	Type       MessageType     `json:"type"`
	DocumentID string          `json:"document_id,omitempty"`
	EditData   json.RawMessage `json:"edit_data,omitempty"`
	CursorData *CursorData     `json:"cursor_data,omitempty"`
	Timestamp  json.RawMessage `json:"timestamp,omitempty"`
}

// UserJoinedMessage is sent to a client on accept and broadcast to
// co-participants when a user joins a document.
type UserJoinedMessage struct {
	Type       MessageType      `json:"type"`
	SessionID  string           `json:"session_id"`
	User       PresenceSnapshot `json:"user"`
	DocumentID string           `json:"document_id,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

type UserLeftMessage struct {
	Type       MessageType `json:"type"`
	UserID     string      `json:"user_id"`
	DocumentID string      `json:"document_id"`
	Timestamp  time.Time   `json:"timestamp"`
}

type DocumentEditMessage struct {
	Type       MessageType    `json:"type"`
	DocumentID string         `json:"document_id"`
	Edit       *EditOperation `json:"edit"`
}

type DocumentCursorMessage struct {
	Type       MessageType `json:"type"`
	DocumentID string      `json:"document_id"`
	UserID     string      `json:"user_id"`
	CursorData CursorData  `json:"cursor_data"`
	Timestamp  time.Time   `json:"timestamp"`
}

// SyncResponseMessage hydrates a client that just opened a document.
type SyncResponseMessage struct {
	Type         MessageType        `json:"type"`
	DocumentID   string             `json:"document_id"`
	Participants []PresenceSnapshot `json:"participants"`
	Version      int64              `json:"version"`
	EditHistory  []*EditOperation   `json:"edit_history"`
}

type HeartbeatMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Error   string      `json:"error"`
	Details string      `json:"details,omitempty"`
}

// Encode serializes an outbound message. All outbound types are plain
// structs, so marshalling cannot fail.
func Encode(msg any) []byte {
	b, _ := json.Marshal(msg)
	return b
}
