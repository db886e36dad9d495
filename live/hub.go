// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/danielhkuo/gastroswipe/metrics"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// Frame types pushed to clients
const (
	TypeMessage = "message"
	TypeEvent   = "event"
)

// Event is one frame on a group feed
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	groupID string
	userID  string
}

// Hub fans group events out to connected websocket clients.
// A client whose send queue is full is disconnected.
type Hub struct {
	mu       sync.Mutex
	groups   map[string]map[*client]struct{}
	upgrader websocket.Upgrader
}

// NewHub returns a hub accepting upgrades from the given origins ("*" for any)
func NewHub(origins []string) *Hub {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return &Hub{
		groups: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Publish sends ev to every client connected to the group
func (h *Hub) Publish(groupID string, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to encode live event", "group_id", groupID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.groups[groupID] {
		select {
		case c.send <- data:
		default:
			slog.Warn("dropping slow live client", "group_id", groupID, "user_id", c.userID)
			h.removeLocked(c)
		}
	}
}

// Count returns the number of clients connected to a group
func (h *Hub) Count(groupID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[groupID])
}

// Serve upgrades the request and streams the group's events until the
// client disconnects. Authorization must be checked by the caller.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, groupID, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		groupID: groupID,
		userID:  userID,
	}
	h.add(c)
	slog.Info("live client connected", "group_id", groupID, "user_id", userID)

	go h.writePump(c)
	h.readPump(c)
	return nil
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.groups[c.groupID] == nil {
		h.groups[c.groupID] = make(map[*client]struct{})
	}
	h.groups[c.groupID][c] = struct{}{}
	metrics.LiveConnections.Inc()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked closes the send queue exactly once; the write pump then closes the conn
func (h *Hub) removeLocked(c *client) {
	clients := h.groups[c.groupID]
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.groups, c.groupID)
	}
	close(c.send)
	metrics.LiveConnections.Dec()
}

// readPump discards client frames and keeps the read deadline alive
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		slog.Info("live client disconnected", "group_id", c.groupID, "user_id", c.userID)
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("live read error", "group_id", c.groupID, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
