package collaboration

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"collabd/internal/models"

	"github.com/segmentio/ksuid"
)

// Presence is the per-connection record of one connected user. It owns the
// connection and closes it exactly once. Cursor fields are ephemeral and
// overwritten on every update.
type Presence struct {
	UserID      string
	Username    string
	SessionID   string
	ConnectedAt time.Time

	conn      Connection
	closeOnce sync.Once

	mu              sync.Mutex
	lastSeen        time.Time
	currentDocument string
	cursorPosition  json.RawMessage
	selectionRange  json.RawMessage
	isTyping        bool
}

func newPresence(conn Connection, userID, username string) *Presence {
	now := time.Now().UTC()
	return &Presence{
		UserID:      userID,
		Username:    username,
		SessionID:   ksuid.New().String(),
		ConnectedAt: now,
		conn:        conn,
		lastSeen:    now,
	}
}

// Touch marks the handle as active now.
func (p *Presence) Touch() {
	p.mu.Lock()
	p.lastSeen = time.Now().UTC()
	p.mu.Unlock()
}

// SetCursor overwrites the cursor state and touches the handle.
func (p *Presence) SetCursor(position, selection json.RawMessage, typing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cursorPosition = position
	p.selectionRange = selection
	p.isTyping = typing
	p.lastSeen = time.Now().UTC()
}

func (p *Presence) LastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// CurrentDocument returns the last document the user joined, or "".
func (p *Presence) CurrentDocument() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentDocument
}

func (p *Presence) setCurrentDocument(documentID string) {
	p.mu.Lock()
	p.currentDocument = documentID
	p.mu.Unlock()
}

// clearCurrentDocument resets the current document only if it still points
// at documentID.
func (p *Presence) clearCurrentDocument(documentID string) {
	p.mu.Lock()
	if p.currentDocument == documentID {
		p.currentDocument = ""
	}
	p.mu.Unlock()
}

// Serialize produces the snapshot embedded in broadcast payloads.
func (p *Presence) Serialize() models.PresenceSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := models.PresenceSnapshot{
		ID:             p.UserID,
		Username:       p.Username,
		SessionID:      p.SessionID,
		ConnectedAt:    p.ConnectedAt,
		LastSeen:       p.lastSeen,
		CursorPosition: p.cursorPosition,
		SelectionRange: p.selectionRange,
		IsTyping:       p.isTyping,
	}
	if p.currentDocument != "" {
		doc := p.currentDocument
		snap.CurrentDocument = &doc
	}
	return snap
}

// send writes one encoded frame. Failures are logged and the frame dropped.
func (p *Presence) send(frame []byte) {
	if err := p.conn.Send(frame); err != nil {
		log.Printf("⚠️  send to user %s (session %s) failed: %v", p.UserID, p.SessionID, err)
	}
}

func (p *Presence) close() {
	p.closeOnce.Do(func() {
		if err := p.conn.Close(); err != nil {
			log.Printf("⚠️  closing connection for user %s: %v", p.UserID, err)
		}
	})
}
