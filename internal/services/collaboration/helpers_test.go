package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func ctx() context.Context { return context.Background() }

// fakeConn records outbound frames instead of writing to a socket.
type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	closes   int
	failSend bool
}

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("broken pipe")
	}
	if c.closes > 0 {
		return ErrConnectionClosed
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// messages decodes every recorded frame.
func (c *fakeConn) messages(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("unmarshal frame %s: %v", f, err)
		}
		out = append(out, m)
	}
	return out
}

// ofType returns the recorded messages whose type is typ.
func (c *fakeConn) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range c.messages(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

// newTestDirectory returns a directory that is shut down when the test ends.
func newTestDirectory(t *testing.T, opts Options) *Directory {
	t.Helper()
	d := NewDirectory(opts)
	t.Cleanup(d.Shutdown)
	return d
}

// connect registers userID with a fresh fakeConn and discards the greeting.
func connect(t *testing.T, d *Directory, userID string) (*Presence, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	p, err := d.Connect(conn, userID, "User "+userID)
	if err != nil {
		t.Fatalf("connect %s: %v", userID, err)
	}
	conn.reset()
	return p, conn
}

// newParticipant builds a handle outside any directory.
func newParticipant(userID string) (*Presence, *fakeConn) {
	conn := &fakeConn{}
	return newPresence(conn, userID, "User "+userID), conn
}

func setLastSeen(p *Presence, ts time.Time) {
	p.mu.Lock()
	p.lastSeen = ts
	p.mu.Unlock()
}
