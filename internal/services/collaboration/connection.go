package collaboration

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrConnectionClosed = errors.New("connection closed")
)

// Connection is the outbound half of an accepted, already-identified
// transport. Send must not block: it is called while a document lock is held.
// Close must be safe to call more than once.
type Connection interface {
	Send(frame []byte) error
	Close() error
}

// wsConnection adapts a gorilla websocket to Connection. Outbound frames are
// queued on a buffered channel drained by WritePump.
type wsConnection struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newWSConnection(conn *websocket.Conn, bufferSize int) *wsConnection {
	return &wsConnection{
		conn: conn,
		send: make(chan []byte, bufferSize),
	}
}

func (c *wsConnection) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops accepting frames. WritePump flushes what is queued, sends a
// close frame and tears down the socket.
func (c *wsConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

// ReadPump feeds inbound frames to the directory until the socket fails,
// then releases the handle. One goroutine per connection.
func (c *wsConnection) ReadPump(ctx context.Context, d *Directory, p *Presence) {
	defer func() {
		d.Release(p)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read error for user %s: %v", p.UserID, err)
			}
			return
		}

		d.dispatch(ctx, p, frame)
	}
}

// WritePump drains the send queue onto the socket and keeps the transport
// alive with pings.
func (c *wsConnection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
