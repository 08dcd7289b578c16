package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EditOperation is one accepted, versioned edit on a document.
// Operation is an opaque payload; the server orders it but never interprets it.
// The same struct is the row written by the edit archive.
type EditOperation struct {
	ID         string          `json:"id" gorm:"type:char(36);primaryKey"`
	DocumentID string          `json:"document_id" gorm:"type:varchar(255);not null;index:idx_doc_version,priority:1"`
	UserID     string          `json:"user_id" gorm:"type:varchar(255);not null;index"`
	Version    int64           `json:"version" gorm:"not null;index:idx_doc_version,priority:2"`
	Operation  json.RawMessage `json:"operation" gorm:"type:jsonb;not null"`
	Timestamp  time.Time       `json:"timestamp" gorm:"column:applied_at;not null"`
	ArchivedAt time.Time       `json:"-" gorm:"column:archived_at;autoCreateTime"`
}

// NewEditOperation stamps a payload with a fresh id and the current time.
func NewEditOperation(documentID, userID string, version int64, operation json.RawMessage) *EditOperation {
	return &EditOperation{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		UserID:     userID,
		Version:    version,
		Operation:  operation,
		Timestamp:  time.Now().UTC(),
	}
}

// TableName override
func (EditOperation) TableName() string {
	return "edit_operations"
}
