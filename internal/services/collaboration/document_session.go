package collaboration

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"collabd/internal/models"
)

var ErrNotParticipant = errors.New("user is not a participant of this document")

// DocumentSession is the coordination unit for one document. Its mutex
// guards participants, version and history; edits are versioned in the order
// the lock is acquired.
//
// History is kept in full for the life of the session; only SYNC_RESPONSE
// trims it. Durable retention is the edit archive's job.
type DocumentSession struct {
	DocumentID string
	CreatedAt  time.Time

	mu           sync.Mutex
	participants map[string]*Presence
	order        []string // join order, for deterministic fanout and snapshots
	version      int64
	history      []*models.EditOperation
}

func newDocumentSession(documentID string) *DocumentSession {
	return &DocumentSession{
		DocumentID:   documentID,
		CreatedAt:    time.Now().UTC(),
		participants: make(map[string]*Presence),
	}
}

// AddParticipant registers p under its user id, replacing any earlier handle
// for the same user, and announces the join to everyone else.
func (s *DocumentSession) AddParticipant(p *Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.participants[p.UserID]; ok {
		if prev != p {
			prev.clearCurrentDocument(s.DocumentID)
		}
	} else {
		s.order = append(s.order, p.UserID)
	}
	s.participants[p.UserID] = p
	p.setCurrentDocument(s.DocumentID)

	s.broadcastLocked(p.UserID, models.UserJoinedMessage{
		Type:       models.MessageTypeUserJoined,
		SessionID:  p.SessionID,
		User:       p.Serialize(),
		DocumentID: s.DocumentID,
		Timestamp:  time.Now().UTC(),
	})
}

// RemoveParticipant drops userID and announces it to the remaining
// participants. Absent users are ignored. It returns the number of
// participants left; the caller deletes the session when that is zero.
func (s *DocumentSession) RemoveParticipant(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[userID]
	if !ok {
		return len(s.participants)
	}

	delete(s.participants, userID)
	for i, id := range s.order {
		if id == userID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	p.clearCurrentDocument(s.DocumentID)

	s.broadcastLocked(userID, models.UserLeftMessage{
		Type:       models.MessageTypeUserLeft,
		UserID:     userID,
		DocumentID: s.DocumentID,
		Timestamp:  time.Now().UTC(),
	})

	return len(s.participants)
}

// ApplyEdit stamps payload with the current version, appends it to the
// history, bumps the version and fans the operation out to the other
// participants. Edits from users who are not participants are rejected with
// ErrNotParticipant.
func (s *DocumentSession) ApplyEdit(userID string, payload json.RawMessage) (*models.EditOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[userID]; !ok {
		return nil, ErrNotParticipant
	}

	op := models.NewEditOperation(s.DocumentID, userID, s.version, payload)
	s.history = append(s.history, op)
	s.version++

	s.broadcastLocked(userID, models.DocumentEditMessage{
		Type:       models.MessageTypeDocumentEdit,
		DocumentID: s.DocumentID,
		Edit:       op,
	})

	return op, nil
}

// UpdateCursor records the cursor of a participant and broadcasts it. It
// reports false, doing nothing, when userID is not a participant.
func (s *DocumentSession) UpdateCursor(userID string, cursor models.CursorData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[userID]
	if !ok {
		return false
	}

	p.SetCursor(cursor.Position, cursor.Selection, cursor.IsTyping)

	s.broadcastLocked(userID, models.DocumentCursorMessage{
		Type:       models.MessageTypeDocumentCursor,
		DocumentID: s.DocumentID,
		UserID:     userID,
		CursorData: cursor,
		Timestamp:  time.Now().UTC(),
	})
	return true
}

// BroadcastToOthers sends msg to every participant except senderID.
func (s *DocumentSession) BroadcastToOthers(senderID string, msg any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(senderID, msg)
}

// BroadcastToAll sends msg to every participant.
func (s *DocumentSession) BroadcastToAll(msg any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked("", msg)
}

// broadcastLocked encodes msg once and sends it to each participant but
// exclude. A failed send is logged by the handle and does not stop the loop.
func (s *DocumentSession) broadcastLocked(exclude string, msg any) {
	frame := models.Encode(msg)
	for _, id := range s.order {
		if id == exclude {
			continue
		}
		s.participants[id].send(frame)
	}
}

// ParticipantsSnapshot returns the serialized participants in join order.
func (s *DocumentSession) ParticipantsSnapshot() []models.PresenceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *DocumentSession) snapshotLocked() []models.PresenceSnapshot {
	out := make([]models.PresenceSnapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.participants[id].Serialize())
	}
	return out
}

// SyncResponse builds the hydration payload for a (re)joining client: all
// participants, the current version and at most historyLimit recent edits.
func (s *DocumentSession) SyncResponse(historyLimit int) models.SyncResponseMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if historyLimit >= 0 && len(s.history) > historyLimit {
		start = len(s.history) - historyLimit
	}
	recent := make([]*models.EditOperation, len(s.history)-start)
	copy(recent, s.history[start:])

	return models.SyncResponseMessage{
		Type:         models.MessageTypeSyncResponse,
		DocumentID:   s.DocumentID,
		Participants: s.snapshotLocked(),
		Version:      s.version,
		EditHistory:  recent,
	}
}

func (s *DocumentSession) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *DocumentSession) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

func (s *DocumentSession) HasParticipant(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.participants[userID]
	return ok
}

// History returns a copy of the full in-memory edit history.
func (s *DocumentSession) History() []*models.EditOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.EditOperation, len(s.history))
	copy(out, s.history)
	return out
}

func (s *DocumentSession) stats() models.DocumentStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.DocumentStats{
		Version:      s.version,
		Participants: len(s.participants),
		EditCount:    len(s.history),
		CreatedAt:    s.CreatedAt,
	}
}
