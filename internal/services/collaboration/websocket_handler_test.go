package collaboration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func setupTestServer(t *testing.T) (*httptest.Server, *Directory) {
	t.Helper()
	d := newTestDirectory(t, Options{})
	h := NewWebSocketHandler(d, 64)
	server := httptest.NewServer(http.HandlerFunc(h.HandleConnection))
	t.Cleanup(server.Close)
	return server, d
}

func wsConnect(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?user_id=" + userID + "&user_name=" + userID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWsMsg(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func TestWebSocket_RequiresUserID(t *testing.T) {
	server, _ := setupTestServer(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without user_id succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("response = %v, want 400", resp)
	}
}

func TestWebSocket_TwoClientsCollaborate(t *testing.T) {
	server, d := setupTestServer(t)

	connA := wsConnect(t, server, "a")
	if msg := readWsMsg(t, connA); msg["type"] != "USER_JOINED" {
		t.Fatalf("a greeting = %v", msg)
	}
	connB := wsConnect(t, server, "b")
	if msg := readWsMsg(t, connB); msg["type"] != "USER_JOINED" {
		t.Fatalf("b greeting = %v", msg)
	}

	connA.WriteJSON(map[string]any{"type": "DOCUMENT_OPEN", "document_id": "collab"})
	if msg := readWsMsg(t, connA); msg["type"] != "SYNC_RESPONSE" {
		t.Fatalf("a expected sync, got %v", msg)
	}

	connB.WriteJSON(map[string]any{"type": "DOCUMENT_OPEN", "document_id": "collab"})
	syncB := readWsMsg(t, connB)
	if syncB["type"] != "SYNC_RESPONSE" || len(syncB["participants"].([]any)) != 2 {
		t.Fatalf("b expected sync with 2 participants, got %v", syncB)
	}

	join := readWsMsg(t, connA)
	if join["type"] != "USER_JOINED" || join["document_id"] != "collab" {
		t.Fatalf("a expected join notification, got %v", join)
	}

	connA.WriteJSON(map[string]any{
		"type":        "DOCUMENT_EDIT",
		"document_id": "collab",
		"edit_data":   map[string]any{"op": "insert", "pos": 0, "text": "hi"},
	})
	edit := readWsMsg(t, connB)
	if edit["type"] != "DOCUMENT_EDIT" {
		t.Fatalf("b expected edit, got %v", edit)
	}
	if v := edit["edit"].(map[string]any)["version"].(float64); v != 0 {
		t.Errorf("edit version = %v, want 0", v)
	}

	connB.WriteJSON(map[string]any{"type": "HEARTBEAT", "timestamp": time.Now().UnixMilli()})
	if beat := readWsMsg(t, connB); beat["type"] != "HEARTBEAT" {
		t.Fatalf("b expected heartbeat echo, got %v", beat)
	}

	// Closing a's socket cascades a leave to b.
	connA.Close()
	left := readWsMsg(t, connB)
	if left["type"] != "USER_LEFT" || left["user_id"] != "a" {
		t.Fatalf("b expected leave, got %v", left)
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.Presence("a") != nil {
		if time.Now().After(deadline) {
			t.Fatal("a was never released")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocket_ServerDisconnectClosesSocket(t *testing.T) {
	server, d := setupTestServer(t)

	conn := wsConnect(t, server, "a")
	readWsMsg(t, conn) // greeting

	d.Disconnect("a")

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}
