// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielhkuo/gastroswipe/live"
	"github.com/danielhkuo/gastroswipe/middleware"
	"github.com/danielhkuo/gastroswipe/models"
	"github.com/google/uuid"
)

// Paging bounds for messages and events
const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
	DefaultEventLimit   = 100
	MaxEventLimit       = 500
)

var controlKinds = map[string]bool{
	models.EventRoundStart:     true,
	models.EventHostPrefs:      true,
	models.EventSwipeResults:   true,
	models.EventPublishResults: true,
	models.EventForceResults:   true,
	models.EventPlayerJoin:     true,
}

// isControlPayload reports whether chat text is a JSON object naming an event kind
func isControlPayload(content string) bool {
	if !strings.HasPrefix(content, "{") {
		return false
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(content), &head); err != nil {
		return false
	}
	return controlKinds[head.Type]
}

// parseLimit reads a bounded integer query parameter
func parseLimit(r *http.Request, name string, def, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, false
	}
	return n, true
}

type MessageHandler struct {
	db  *sql.DB
	hub *live.Hub
}

func NewMessageHandler(db *sql.DB, hub *live.Hub) *MessageHandler {
	return &MessageHandler{db: db, hub: hub}
}

// ListMessages handles GET /api/groups/{id}/messages
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := requireMember(w, r, h.db)
	if !ok {
		return
	}

	limit, ok := parseLimit(r, "limit", DefaultMessageLimit, MaxMessageLimit)
	if !ok {
		middleware.ValidationError(w, map[string]string{"limit": "OUT_OF_RANGE"})
		return
	}

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			middleware.ValidationError(w, map[string]string{"before": "INVALID"})
			return
		}
		before = &t
	}

	// before_id pages on (created_at, id) so messages sharing a timestamp are not skipped
	var cursorAt *time.Time
	var cursorID *string
	if raw := r.URL.Query().Get("before_id"); raw != "" {
		if !validUUID(raw) {
			middleware.ValidationError(w, map[string]string{"before_id": "INVALID"})
			return
		}
		var at time.Time
		err := h.db.QueryRowContext(r.Context(), `
			SELECT created_at FROM group_message WHERE id = $1 AND group_id = $2
		`, raw, groupID).Scan(&at)
		if err == sql.ErrNoRows {
			middleware.ValidationError(w, map[string]string{"before_id": "NOT_FOUND"})
			return
		}
		if err != nil {
			middleware.InternalError(w, "failed to query cursor message", err)
			return
		}
		cursorAt, cursorID = &at, &raw
	}

	// Newest page first, then flipped to chronological order
	rows, err := h.db.QueryContext(r.Context(), `
		SELECT id, group_id, user_id, author_alias, content, created_at
		FROM group_message
		WHERE group_id = $1
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		  AND ($3::timestamptz IS NULL OR (created_at, id) < ($3, $4::uuid))
		ORDER BY created_at DESC, id DESC
		LIMIT $5
	`, groupID, before, cursorAt, cursorID, limit)
	if err != nil {
		middleware.InternalError(w, "failed to query messages", err)
		return
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.AuthorAlias, &m.Content, &m.CreatedAt); err != nil {
			middleware.InternalError(w, "failed to scan message", err)
			return
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		middleware.InternalError(w, "failed to iterate messages", err)
		return
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	middleware.Items(w, messages, nil)
}

// PostMessage handles POST /api/groups/{id}/messages
func (h *MessageHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := requireMember(w, r, h.db)
	if !ok {
		return
	}

	var req models.PostMessageRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if fields := middleware.Validate(&req); fields != nil {
		middleware.ValidationError(w, fields)
		return
	}

	if isControlPayload(req.Content) {
		middleware.ErrorWithCode(w, http.StatusUnprocessableEntity, models.CodeControlMessage,
			"Round actions must use the round endpoints, not chat")
		return
	}

	userID := currentUser(r)
	msg := models.Message{
		ID:      uuid.NewString(),
		GroupID: groupID,
		UserID:  userID,
		Content: req.Content,
	}

	err := h.db.QueryRowContext(r.Context(), `
		INSERT INTO group_message (id, group_id, user_id, author_alias, content)
		SELECT $1, $2, $3, u.display_name, $4 FROM app_user u WHERE u.id = $3
		RETURNING author_alias, created_at
	`, msg.ID, groupID, userID, req.Content).Scan(&msg.AuthorAlias, &msg.CreatedAt)
	if err != nil {
		middleware.InternalError(w, "failed to insert message", err)
		return
	}

	publishMessage(h.hub, msg)
	slog.Debug("message posted", "group_id", groupID, "message_id", msg.ID)

	middleware.Data(w, http.StatusCreated, msg, nil)
}

// ListEvents handles GET /api/groups/{id}/events
func (h *MessageHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := requireMember(w, r, h.db)
	if !ok {
		return
	}

	limit, ok := parseLimit(r, "limit", DefaultEventLimit, MaxEventLimit)
	if !ok {
		middleware.ValidationError(w, map[string]string{"limit": "OUT_OF_RANGE"})
		return
	}

	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			middleware.ValidationError(w, map[string]string{"after": "INVALID"})
			return
		}
		after = n
	}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT id, group_id, round_id, user_id, kind, payload, created_at
		FROM group_event
		WHERE group_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`, groupID, after, limit)
	if err != nil {
		middleware.InternalError(w, "failed to query events", err)
		return
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var ev models.Event
		var roundID sql.NullString
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.GroupID, &roundID, &ev.UserID, &ev.Kind, &payload, &ev.CreatedAt); err != nil {
			middleware.InternalError(w, "failed to scan event", err)
			return
		}
		if roundID.Valid {
			ev.RoundID = &roundID.String
		}
		ev.Payload = payload
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		middleware.InternalError(w, "failed to iterate events", err)
		return
	}

	middleware.Items(w, events, nil)
}

// Live handles GET /api/groups/{id}/live
func (h *MessageHandler) Live(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := requireMember(w, r, h.db)
	if !ok {
		return
	}

	if h.hub == nil {
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Live feed unavailable")
		return
	}

	if err := h.hub.Serve(w, r, groupID, currentUser(r)); err != nil {
		slog.Warn("live upgrade failed", "group_id", groupID, "error", err)
	}
}
