// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/gastroswipe/auth"
	"github.com/danielhkuo/gastroswipe/live"
	"github.com/danielhkuo/gastroswipe/middleware"
	"github.com/danielhkuo/gastroswipe/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres error codes
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == pqUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pqCode(err) == pqForeignKeyViolation
}

func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// currentUser returns the user placed in the context by middleware.RequireUser
func currentUser(r *http.Request) string {
	userID, _ := auth.UserIDFromContext(r.Context())
	return userID
}

func isElevated(role string) bool {
	return role == models.RoleHost || role == models.RoleOwner
}

// requireMember resolves the caller's role in the group from the {id} path value.
// Writes 404 for unknown groups and 403 for non-members.
func requireMember(w http.ResponseWriter, r *http.Request, db *sql.DB) (groupID, role string, ok bool) {
	groupID = r.PathValue("id")
	if !validUUID(groupID) {
		middleware.ErrorWithCode(w, http.StatusNotFound, models.CodeNotFound, "Group not found")
		return "", "", false
	}

	err := db.QueryRowContext(r.Context(), `
		SELECT role FROM group_member WHERE group_id = $1 AND user_id = $2
	`, groupID, currentUser(r)).Scan(&role)
	if err == nil {
		return groupID, role, true
	}
	if err != sql.ErrNoRows {
		middleware.InternalError(w, "failed to query membership", err)
		return "", "", false
	}

	var exists bool
	err = db.QueryRowContext(r.Context(), `SELECT EXISTS(SELECT 1 FROM dining_group WHERE id = $1)`, groupID).Scan(&exists)
	if err != nil {
		middleware.InternalError(w, "failed to query group", err)
		return "", "", false
	}
	if !exists {
		middleware.ErrorWithCode(w, http.StatusNotFound, models.CodeNotFound, "Group not found")
	} else {
		middleware.ErrorWithCode(w, http.StatusForbidden, models.CodeForbidden, "Not a member of this group")
	}
	return "", "", false
}

// requireElevated is requireMember restricted to hosts and owners
func requireElevated(w http.ResponseWriter, r *http.Request, db *sql.DB) (groupID, role string, ok bool) {
	groupID, role, ok = requireMember(w, r, db)
	if !ok {
		return "", "", false
	}
	if !isElevated(role) {
		middleware.ErrorWithCode(w, http.StatusForbidden, models.CodeForbidden, "Only the host or owner can do this")
		return "", "", false
	}
	return groupID, role, true
}

func isAdmin(ctx context.Context, db *sql.DB, userID string) (bool, error) {
	var admin bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM admin WHERE user_id = $1)`, userID).Scan(&admin)
	return admin, err
}

// requireAdmin writes 403 unless the caller is in the admin table
func requireAdmin(w http.ResponseWriter, r *http.Request, db *sql.DB) bool {
	admin, err := isAdmin(r.Context(), db, currentUser(r))
	if err != nil {
		middleware.InternalError(w, "failed to check admin", err)
		return false
	}
	if !admin {
		middleware.ErrorWithCode(w, http.StatusForbidden, models.CodeForbidden, "Admin access required")
		return false
	}
	return true
}

// recordEvent appends a typed event to the group outbox inside tx.
// It must be the last statement before Commit: the per-group lock it takes
// is held until the transaction ends, so event ids within a group are
// assigned in commit order and an after=<id> cursor never skips a row.
func recordEvent(ctx context.Context, tx queryer, groupID string, roundID *string, userID, kind string, payload any) (models.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return models.Event{}, err
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('group_event:' || $1::text))`, groupID); err != nil {
		return models.Event{}, err
	}

	ev := models.Event{
		GroupID: groupID,
		RoundID: roundID,
		UserID:  userID,
		Kind:    kind,
		Payload: data,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO group_event (group_id, round_id, user_id, kind, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, groupID, roundID, userID, kind, string(data)).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return models.Event{}, err
	}
	return ev, nil
}

// publishEvent pushes committed events to live clients; a nil hub is a no-op
func publishEvent(hub *live.Hub, ev models.Event) {
	if hub == nil {
		return
	}
	hub.Publish(ev.GroupID, live.Event{Type: live.TypeEvent, Payload: ev})
	slog.Debug("event published", "group_id", ev.GroupID, "kind", ev.Kind, "event_id", ev.ID)
}

func publishMessage(hub *live.Hub, msg models.Message) {
	if hub == nil {
		return
	}
	hub.Publish(msg.GroupID, live.Event{Type: live.TypeMessage, Payload: msg})
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
