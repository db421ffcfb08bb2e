package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/hexaflow/taskpilot/internal/domain/chat"
)

func newHubServer(t *testing.T) (*Hub, string) {
	t.Helper()
	h := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitForConnections(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ConnectionCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("connection count = %d, want %d", h.ConnectionCount(), want)
}

func TestBroadcastWithoutConnections(t *testing.T) {
	h := NewHub()
	if h.ConnectionCount() != 0 {
		t.Fatalf("fresh hub has %d connections", h.ConnectionCount())
	}
	// Must be a no-op, not a panic.
	h.BroadcastRunEvent(context.Background(), chat.Event{Type: chat.EventStart})
}

func TestBroadcastReachesObserver(t *testing.T) {
	h, url := newHubServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	waitForConnections(t, h, 1)

	h.BroadcastRunEvent(ctx, chat.Event{Type: chat.EventIteration, Iteration: 1, MaxIterations: 3})

	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if msg.Type != "run.iteration" {
		t.Errorf("type = %q, want run.iteration", msg.Type)
	}
	var ev chat.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if ev.Iteration != 1 || ev.MaxIterations != 3 {
		t.Errorf("payload = %+v", ev)
	}
}

func TestDisconnectRemovesConnection(t *testing.T) {
	h, url := newHubServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForConnections(t, h, 1)

	_ = c.Close(websocket.StatusNormalClosure, "")
	waitForConnections(t, h, 0)
}
