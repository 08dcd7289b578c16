package collaboration

import (
	"context"
	"log"
	"net/http"

	"collabd/internal/middleware"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin and identity are enforced by the gateway in front of us.
		return true
	},
}

// WebSocketHandler accepts websocket connections and hands them to the
// directory. The caller is already authenticated upstream; identity arrives
// as user_id and user_name query parameters.
type WebSocketHandler struct {
	directory  *Directory
	bufferSize int
}

// NewWebSocketHandler creates a handler whose connections queue at most
// bufferSize outbound frames.
func NewWebSocketHandler(directory *Directory, bufferSize int) *WebSocketHandler {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &WebSocketHandler{
		directory:  directory,
		bufferSize: bufferSize,
	}
}

// HandleConnection upgrades the request and runs the connection's pumps.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	userName := r.URL.Query().Get("user_name")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if userName == "" {
		userName = userID
	}

	ctx, span := middleware.StartSpan(r.Context(), "WebSocket.Connect",
		attribute.String("user.id", userID),
	)
	defer span.End()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	wsConn := newWSConnection(conn, h.bufferSize)
	p, err := h.directory.Connect(wsConn, userID, userName)
	if err != nil {
		log.Printf("⚠️  Rejecting connection for user %s: %v", userID, err)
		middleware.AddSpanError(ctx, err)
		go wsConn.WritePump()
		return
	}

	// The request context ends when this handler returns; the pumps outlive it.
	pumpCtx := context.WithoutCancel(ctx)
	go wsConn.WritePump()
	go wsConn.ReadPump(pumpCtx, h.directory, p)

	log.Printf("✓ WebSocket connection established for user %s (%s)", userID, p.SessionID)
}
