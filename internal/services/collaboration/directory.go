package collaboration

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"collabd/internal/models"
)

var (
	ErrDirectoryClosed = errors.New("session directory is shut down")
	ErrNotConnected    = errors.New("user is not connected")
)

// EditSink receives every accepted edit after the document lock is released.
// Submit must not block.
type EditSink interface {
	Submit(op *models.EditOperation) error
}

// Options configures a Directory. Zero values fall back to the defaults below.
type Options struct {
	IdleTimeout      time.Duration
	ReapInterval     time.Duration
	SyncHistoryLimit int
	Archive          EditSink
}

const (
	DefaultIdleTimeout      = 5 * time.Minute
	DefaultReapInterval     = 30 * time.Second
	DefaultSyncHistoryLimit = 50
)

// Directory is the process-wide coordinator: it owns every connected
// Presence, every live DocumentSession and the user -> documents index used
// to cascade leaves on disconnect.
//
// Lock order is Directory.mu, then DocumentSession.mu, then Presence.mu.
// Edits and cursor updates only take the directory lock long enough to look
// the session up, so different documents never block each other.
type Directory struct {
	opts Options

	mu          sync.Mutex
	connections map[string]*Presence
	sessions    map[string]*DocumentSession
	userDocs    map[string]map[string]struct{}
	reaping     bool
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDirectory creates an empty directory. The idle reaper starts with the
// first connection; call Shutdown to stop it and drain every connection.
func NewDirectory(opts Options) *Directory {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = DefaultReapInterval
	}
	if opts.SyncHistoryLimit <= 0 {
		opts.SyncHistoryLimit = DefaultSyncHistoryLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Directory{
		opts:        opts,
		connections: make(map[string]*Presence),
		sessions:    make(map[string]*DocumentSession),
		userDocs:    make(map[string]map[string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Connect registers a new handle for userID. A user already connected is
// fully disconnected first, so at most one handle per user is ever active.
// The new client is greeted with USER_JOINED.
func (d *Directory) Connect(conn Connection, userID, username string) (*Presence, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		conn.Close()
		return nil, ErrDirectoryClosed
	}

	if _, ok := d.connections[userID]; ok {
		log.Printf("  User %s reconnected, replacing previous session", userID)
		d.disconnectLocked(userID)
	}

	p := newPresence(conn, userID, username)
	d.connections[userID] = p
	d.userDocs[userID] = make(map[string]struct{})

	if !d.reaping {
		d.reaping = true
		d.wg.Add(1)
		go d.idleReaper()
	}
	total := len(d.connections)
	d.mu.Unlock()

	log.Printf("  User %s connected (session %s, total: %d)", userID, p.SessionID, total)

	p.send(models.Encode(models.UserJoinedMessage{
		Type:      models.MessageTypeUserJoined,
		SessionID: p.SessionID,
		User:      p.Serialize(),
		Timestamp: time.Now().UTC(),
	}))

	return p, nil
}

// Disconnect tears down userID's handle, leaving every document it had
// joined. Unknown users are ignored.
func (d *Directory) Disconnect(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnectLocked(userID)
}

// Release disconnects p if it is still the active handle of its user. The
// transport calls this when a socket dies, so a superseded connection that
// closes late cannot tear down its replacement.
func (d *Directory) Release(p *Presence) {
	d.mu.Lock()
	if d.connections[p.UserID] == p {
		d.disconnectLocked(p.UserID)
	}
	d.mu.Unlock()

	p.close()
}

func (d *Directory) disconnectLocked(userID string) {
	p, ok := d.connections[userID]
	if !ok {
		return
	}
	delete(d.connections, userID)

	for documentID := range d.userDocs[userID] {
		d.leaveLocked(userID, documentID)
	}
	delete(d.userDocs, userID)

	p.close()
	log.Printf("  User %s disconnected (session %s, remaining: %d)", userID, p.SessionID, len(d.connections))
}

// JoinDocument adds userID to documentID, creating the session on first
// join. It fails with ErrNotConnected when the user has no active handle.
func (d *Directory) JoinDocument(userID, documentID string) (*DocumentSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.connections[userID]
	if !ok {
		return nil, ErrNotConnected
	}

	s, ok := d.sessions[documentID]
	if !ok {
		s = newDocumentSession(documentID)
		d.sessions[documentID] = s
	}

	s.AddParticipant(p)
	d.userDocs[userID][documentID] = struct{}{}

	log.Printf("  User %s joined document %s (total: %d users)", userID, documentID, s.ParticipantCount())
	return s, nil
}

// LeaveDocument removes userID from documentID and deletes the session once
// it is empty.
func (d *Directory) LeaveDocument(userID, documentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leaveLocked(userID, documentID)
}

func (d *Directory) leaveLocked(userID, documentID string) {
	if s, ok := d.sessions[documentID]; ok {
		remaining := s.RemoveParticipant(userID)
		if remaining == 0 {
			delete(d.sessions, documentID)
			log.Printf("  Document session %s closed", documentID)
		} else {
			log.Printf("  User %s left document %s (remaining: %d users)", userID, documentID, remaining)
		}
	}

	if docs, ok := d.userDocs[userID]; ok {
		delete(docs, documentID)
	}
}

// Session returns the live session for documentID, or nil.
func (d *Directory) Session(documentID string) *DocumentSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[documentID]
}

// Presence returns the active handle for userID, or nil.
func (d *Directory) Presence(userID string) *Presence {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connections[userID]
}

// Documents returns the ids of the documents userID has joined.
func (d *Directory) Documents(userID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	docs := d.userDocs[userID]
	out := make([]string, 0, len(docs))
	for id := range docs {
		out = append(out, id)
	}
	return out
}

// idleReaper disconnects handles that have been silent longer than the idle
// timeout. An idle handle can survive up to IdleTimeout+ReapInterval.
func (d *Directory) idleReaper() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case now := <-ticker.C:
			d.reapIdle(now)
		}
	}
}

// reapIdle runs one reaper pass and returns the users it disconnected.
func (d *Directory) reapIdle(now time.Time) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var stale []string
	for userID, p := range d.connections {
		if now.Sub(p.LastSeen()) > d.opts.IdleTimeout {
			stale = append(stale, userID)
		}
	}

	for _, userID := range stale {
		log.Printf("  Reaping idle user %s", userID)
		d.disconnectLocked(userID)
	}
	return stale
}

// Stats is a pure read over the directory.
func (d *Directory) Stats() models.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := models.Stats{
		ActiveConnections: len(d.connections),
		ActiveDocuments:   len(d.sessions),
		Documents:         make(map[string]models.DocumentStats, len(d.sessions)),
	}
	for id, s := range d.sessions {
		ds := s.stats()
		stats.TotalParticipants += ds.Participants
		stats.Documents[id] = ds
	}
	return stats
}

// Shutdown stops the reaper and disconnects every handle. Later Connect
// calls fail with ErrDirectoryClosed.
func (d *Directory) Shutdown() {
	log.Println("🛑 Shutting down session directory...")

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()

	d.mu.Lock()
	for userID := range d.connections {
		d.disconnectLocked(userID)
	}
	d.mu.Unlock()

	log.Println("✓ Session directory shutdown complete")
}
