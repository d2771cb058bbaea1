package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/homestream/homestream/internal/infrastructure/config"
	"github.com/homestream/homestream/internal/infrastructure/logging"
)

// dialTestServer stands up the upgrade handler and dials it.
func dialTestServer(t *testing.T) (*Registry, *websocket.Conn) {
	t.Helper()

	registry := NewRegistry(logging.Default())
	server := NewServer(config.WebSocketConfig{Path: "/ws"}, registry, logging.Default())

	ts := httptest.NewServer(http.HandlerFunc(server.handleUpgrade))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return registry, conn
}

func readReply(t *testing.T, conn *websocket.Conn) reply {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var rep reply
	if err := json.Unmarshal(raw, &rep); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	return rep
}

func TestServerHandshakeOverWire(t *testing.T) {
	registry, conn := dialTestServer(t)

	if err := conn.WriteJSON(map[string]any{"type": "authenticate", "userId": 7}); err != nil {
		t.Fatalf("write authenticate: %v", err)
	}
	if rep := readReply(t, conn); rep.Type != "authenticated" {
		t.Fatalf("reply type = %q, want authenticated", rep.Type)
	}

	waitFor(t, func() bool { return len(registry.ConnectionsFor(7)) == 1 })
}

func TestServerRejectsPreAuthFrames(t *testing.T) {
	_, conn := dialTestServer(t)

	if err := conn.WriteJSON(map[string]any{"type": "subscribe"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if rep := readReply(t, conn); rep.Type != "error" {
		t.Fatalf("reply type = %q, want error", rep.Type)
	}
}

func TestServerUnregistersOnDisconnect(t *testing.T) {
	registry, conn := dialTestServer(t)

	if err := conn.WriteJSON(map[string]any{"type": "authenticate", "userId": 7}); err != nil {
		t.Fatalf("write authenticate: %v", err)
	}
	readReply(t, conn)
	waitFor(t, func() bool { return registry.CountConnections() == 1 })

	conn.Close()

	waitFor(t, func() bool { return registry.CountConnections() == 0 })
	waitFor(t, func() bool { return registry.CountUsers() == 0 })
}

// waitFor polls a condition until it holds or the deadline passes.
// Connection teardown is asynchronous, so assertions on registry state
// need a grace window.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
