// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		group := r.URL.Query().Get("group")
		if err := hub.Serve(w, r, group, "user-"+group); err != nil {
			t.Logf("serve: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, group string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?group=" + group
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForCount(t *testing.T, hub *Hub, group string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count(group) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("group %s: expected %d clients, have %d", group, want, hub.Count(group))
}

func TestPublishReachesGroupOnly(t *testing.T) {
	hub := NewHub([]string{"*"})
	srv := newTestServer(t, hub)

	a := dial(t, srv, "a")
	b := dial(t, srv, "b")
	waitForCount(t, hub, "a", 1)
	waitForCount(t, hub, "b", 1)

	hub.Publish("a", Event{Type: TypeMessage, Payload: map[string]string{"content": "hi"}})

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := a.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != TypeMessage {
		t.Errorf("Expected type %s, got %s", TypeMessage, got.Type)
	}
	payload, ok := got.Payload.(map[string]any)
	if !ok || payload["content"] != "hi" {
		t.Errorf("Unexpected payload %v", got.Payload)
	}

	b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := b.ReadMessage(); err == nil {
		t.Error("Group b received an event for group a")
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	hub := NewHub([]string{"*"})
	srv := newTestServer(t, hub)

	conn := dial(t, srv, "g")
	waitForCount(t, hub, "g", 1)

	conn.Close()
	waitForCount(t, hub, "g", 0)

	// Publishing to an empty group is a no-op
	hub.Publish("g", Event{Type: TypeEvent, Payload: nil})
}

func TestSlowClientDropped(t *testing.T) {
	hub := NewHub([]string{"*"})
	c := &client{send: make(chan []byte, 1), groupID: "g", userID: "u"}
	hub.add(c)

	hub.Publish("g", Event{Type: TypeEvent})
	hub.Publish("g", Event{Type: TypeEvent}) // queue full

	if hub.Count("g") != 0 {
		t.Errorf("Expected slow client to be removed, %d remain", hub.Count("g"))
	}
	if _, ok := <-c.send; !ok {
		t.Fatal("Expected the first queued frame before close")
	}
	if _, ok := <-c.send; ok {
		t.Error("Expected send queue to be closed")
	}

	// Removing twice must not panic
	hub.remove(c)
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub([]string{"https://app.example"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://app.example", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := hub.upgrader.CheckOrigin(req); got != tt.want {
			t.Errorf("CheckOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
