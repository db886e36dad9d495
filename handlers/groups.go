// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielhkuo/gastroswipe/auth"
	"github.com/danielhkuo/gastroswipe/cliparse"
	"github.com/danielhkuo/gastroswipe/live"
	"github.com/danielhkuo/gastroswipe/middleware"
	"github.com/danielhkuo/gastroswipe/models"
	"github.com/google/uuid"
)

// Invite defaults
const (
	DefaultInviteHours = 168
)

type GroupHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	hub *live.Hub
}

func NewGroupHandler(db *sql.DB, cfg cliparse.Config, hub *live.Hub) *GroupHandler {
	return &GroupHandler{db: db, cfg: cfg, hub: hub}
}

// CreateGroup handles POST /api/groups
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req models.CreateGroupRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if fields := middleware.Validate(&req); fields != nil {
		middleware.ValidationError(w, fields)
		return
	}

	userID := currentUser(r)
	groupID := uuid.NewString()
	code, err := auth.GenerateInviteCode()
	if err != nil {
		middleware.InternalError(w, "failed to generate invite code", err)
		return
	}

	tx, err := h.db.BeginTx(r.Context(), nil)
	if err != nil {
		middleware.InternalError(w, "failed to begin transaction", err)
		return
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(r.Context(), `
		INSERT INTO dining_group (id, name, created_by) VALUES ($1, $2, $3)
	`, groupID, req.Name, userID)
	if isForeignKeyViolation(err) {
		middleware.ErrorWithCode(w, http.StatusUnauthorized, models.CodeUnauthenticated, "Session user no longer exists")
		return
	}
	if err != nil {
		middleware.InternalError(w, "failed to insert group", err)
		return
	}

	_, err = tx.ExecContext(r.Context(), `
		INSERT INTO group_member (group_id, user_id, role) VALUES ($1, $2, $3)
	`, groupID, userID, models.RoleOwner)
	if err != nil {
		middleware.InternalError(w, "failed to insert owner", err)
		return
	}

	_, err = tx.ExecContext(r.Context(), `
		INSERT INTO group_invite (code, group_id, created_by, expires_at, max_uses)
		VALUES ($1, $2, $3, $4, 0)
	`, code, groupID, userID, time.Now().Add(DefaultInviteHours*time.Hour))
	if err != nil {
		middleware.InternalError(w, "failed to insert invite", err)
		return
	}

	if err := tx.Commit(); err != nil {
		middleware.InternalError(w, "failed to commit group", err)
		return
	}

	slog.Info("group created", "group_id", groupID, "owner", userID)

	middleware.Data(w, http.StatusCreated, models.CreateGroupResponse{
		ID:         groupID,
		Name:       req.Name,
		Role:       models.RoleOwner,
		InviteCode: code,
	}, nil)
}

// ListGroups handles GET /api/groups
func (h *GroupHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.QueryContext(r.Context(), `
		SELECT g.id, g.name, m.role, g.created_at,
			(SELECT COUNT(*) FROM group_member gm WHERE gm.group_id = g.id)
		FROM dining_group g
		JOIN group_member m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.created_at DESC
	`, currentUser(r))
	if err != nil {
		middleware.InternalError(w, "failed to query groups", err)
		return
	}
	defer rows.Close()

	groups := []models.GroupSummary{}
	for rows.Next() {
		var g models.GroupSummary
		if err := rows.Scan(&g.ID, &g.Name, &g.Role, &g.CreatedAt, &g.MemberCount); err != nil {
			middleware.InternalError(w, "failed to scan group", err)
			return
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		middleware.InternalError(w, "failed to iterate groups", err)
		return
	}

	middleware.Items(w, groups, nil)
}

// GetGroup handles GET /api/groups/{id}
func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, role, ok := requireMember(w, r, h.db)
	if !ok {
		return
	}

	detail := models.GroupDetail{Role: role, Members: []models.Member{}}
	err := h.db.QueryRowContext(r.Context(), `
		SELECT id, name, created_by, created_at FROM dining_group WHERE id = $1
	`, groupID).Scan(&detail.ID, &detail.Name, &detail.CreatedBy, &detail.CreatedAt)
	if err != nil {
		middleware.InternalError(w, "failed to query group", err)
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT m.user_id, u.display_name, m.role, m.joined_at
		FROM group_member m
		JOIN app_user u ON u.id = m.user_id
		WHERE m.group_id = $1
		ORDER BY m.joined_at, u.display_name
	`, groupID)
	if err != nil {
		middleware.InternalError(w, "failed to query members", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.UserID, &m.DisplayName, &m.Role, &m.JoinedAt); err != nil {
			middleware.InternalError(w, "failed to scan member", err)
			return
		}
		detail.Members = append(detail.Members, m)
	}
	if err := rows.Err(); err != nil {
		middleware.InternalError(w, "failed to iterate members", err)
		return
	}

	if h.hub != nil {
		detail.Online = h.hub.Count(groupID)
	}

	middleware.Data(w, http.StatusOK, detail, nil)
}

// CreateInvite handles POST /api/groups/{id}/invites
func (h *GroupHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := requireElevated(w, r, h.db)
	if !ok {
		return
	}

	if h.cfg.SiteURL == "" {
		slog.Error("invite requested without SITE_URL")
		middleware.ErrorWithCode(w, http.StatusInternalServerError, models.CodeConfigMissing, "SITE_URL is not configured")
		return
	}

	var req models.CreateInviteRequest
	if err := middleware.ParseOptionalJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if fields := middleware.Validate(&req); fields != nil {
		middleware.ValidationError(w, fields)
		return
	}

	hours := DefaultInviteHours
	if req.ExpiresInHours != nil {
		hours = *req.ExpiresInHours
	}
	maxUses := 0
	if req.MaxUses != nil {
		maxUses = *req.MaxUses
	}

	code, err := auth.GenerateInviteCode()
	if err != nil {
		middleware.InternalError(w, "failed to generate invite code", err)
		return
	}

	expiresAt := time.Now().Add(time.Duration(hours) * time.Hour)
	_, err = h.db.ExecContext(r.Context(), `
		INSERT INTO group_invite (code, group_id, created_by, expires_at, max_uses)
		VALUES ($1, $2, $3, $4, $5)
	`, code, groupID, currentUser(r), expiresAt, maxUses)
	if err != nil {
		middleware.InternalError(w, "failed to insert invite", err)
		return
	}

	slog.Info("invite created", "group_id", groupID, "expires_in_hours", hours, "max_uses", maxUses)

	middleware.Data(w, http.StatusCreated, models.InviteResponse{
		Code:      code,
		InviteURL: h.cfg.SiteURL + "/invite/" + code,
		ExpiresAt: expiresAt,
		MaxUses:   maxUses,
	}, nil)
}

// RedeemInvite handles POST /api/invites/redeem
func (h *GroupHandler) RedeemInvite(w http.ResponseWriter, r *http.Request) {
	var req models.RedeemInviteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if fields := middleware.Validate(&req); fields != nil {
		middleware.ValidationError(w, fields)
		return
	}

	userID := currentUser(r)

	tx, err := h.db.BeginTx(r.Context(), nil)
	if err != nil {
		middleware.InternalError(w, "failed to begin transaction", err)
		return
	}
	defer tx.Rollback()

	var groupID string
	var expiresAt time.Time
	var maxUses, uses int
	err = tx.QueryRowContext(r.Context(), `
		SELECT group_id, expires_at, max_uses, uses
		FROM group_invite WHERE code = $1
		FOR UPDATE
	`, req.Code).Scan(&groupID, &expiresAt, &maxUses, &uses)
	if err == sql.ErrNoRows {
		middleware.ErrorWithCode(w, http.StatusNotFound, models.CodeNotFound, "Invite not found")
		return
	}
	if err != nil {
		middleware.InternalError(w, "failed to query invite", err)
		return
	}

	var role string
	err = tx.QueryRowContext(r.Context(), `
		SELECT role FROM group_member WHERE group_id = $1 AND user_id = $2
	`, groupID, userID).Scan(&role)
	if err == nil {
		middleware.Data(w, http.StatusOK, models.RedeemInviteResponse{GroupID: groupID, Role: role, Joined: false}, nil)
		return
	}
	if err != sql.ErrNoRows {
		middleware.InternalError(w, "failed to query membership", err)
		return
	}

	if time.Now().After(expiresAt) {
		middleware.ErrorWithCode(w, http.StatusConflict, models.CodeInviteExpired, "Invite has expired")
		return
	}
	if maxUses > 0 && uses >= maxUses {
		middleware.ErrorWithCode(w, http.StatusConflict, models.CodeInviteExhausted, "Invite has no uses left")
		return
	}

	_, err = tx.ExecContext(r.Context(), `
		INSERT INTO group_member (group_id, user_id, role) VALUES ($1, $2, $3)
	`, groupID, userID, models.RoleMember)
	if err != nil {
		middleware.InternalError(w, "failed to insert member", err)
		return
	}

	_, err = tx.ExecContext(r.Context(), `UPDATE group_invite SET uses = uses + 1 WHERE code = $1`, req.Code)
	if err != nil {
		middleware.InternalError(w, "failed to update invite", err)
		return
	}

	var displayName string
	if err := tx.QueryRowContext(r.Context(), `SELECT display_name FROM app_user WHERE id = $1`, userID).Scan(&displayName); err != nil {
		middleware.InternalError(w, "failed to query user", err)
		return
	}

	ev, err := recordEvent(r.Context(), tx, groupID, nil, userID, models.EventPlayerJoin, map[string]string{
		"user_id":      userID,
		"display_name": displayName,
	})
	if err != nil {
		middleware.InternalError(w, "failed to record join event", err)
		return
	}

	if err := tx.Commit(); err != nil {
		middleware.InternalError(w, "failed to commit join", err)
		return
	}

	publishEvent(h.hub, ev)
	slog.Info("member joined", "group_id", groupID, "user_id", userID)

	middleware.Data(w, http.StatusCreated, models.RedeemInviteResponse{
		GroupID: groupID,
		Role:    models.RoleMember,
		Joined:  true,
	}, nil)
}

// LeaveGroup handles DELETE /api/groups/{id}/members/me
func (h *GroupHandler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	groupID, role, ok := requireMember(w, r, h.db)
	if !ok {
		return
	}

	if role == models.RoleOwner {
		middleware.ErrorWithCode(w, http.StatusConflict, models.CodeOwnerCannotLeave, "The owner cannot leave the group")
		return
	}

	userID := currentUser(r)
	_, err := h.db.ExecContext(r.Context(), `
		DELETE FROM group_member WHERE group_id = $1 AND user_id = $2
	`, groupID, userID)
	if err != nil {
		middleware.InternalError(w, "failed to delete member", err)
		return
	}

	slog.Info("member left", "group_id", groupID, "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

// SetMemberRole handles PUT /api/groups/{id}/members/{uid}/role.
// Only the owner assigns roles, and only member or host.
func (h *GroupHandler) SetMemberRole(w http.ResponseWriter, r *http.Request) {
	groupID, role, ok := requireMember(w, r, h.db)
	if !ok {
		return
	}
	if role != models.RoleOwner {
		middleware.ErrorWithCode(w, http.StatusForbidden, models.CodeForbidden, "Only the owner can change roles")
		return
	}

	targetID := r.PathValue("uid")
	if !validUUID(targetID) {
		middleware.ErrorWithCode(w, http.StatusNotFound, models.CodeNotFound, "Member not found")
		return
	}
	if targetID == currentUser(r) {
		middleware.ErrorWithCode(w, http.StatusConflict, models.CodeOwnerRoleFixed, "The owner's role cannot be changed")
		return
	}

	var req models.SetRoleRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

	var m models.Member
	err := h.db.QueryRowContext(r.Context(), `
		UPDATE group_member m SET role = $1
		FROM app_user u
		WHERE u.id = m.user_id AND m.group_id = $2 AND m.user_id = $3 AND m.role <> $4
		RETURNING m.user_id, u.display_name, m.role, m.joined_at
	`, req.Role, groupID, targetID, models.RoleOwner).Scan(&m.UserID, &m.DisplayName, &m.Role, &m.JoinedAt)
	if err == sql.ErrNoRows {
		middleware.ErrorWithCode(w, http.StatusNotFound, models.CodeNotFound, "Member not found")
		return
	}
	if err != nil {
		middleware.InternalError(w, "failed to update role", err)
		return
	}

	slog.Info("member role changed", "group_id", groupID, "user_id", targetID, "role", m.Role)
	middleware.Data(w, http.StatusOK, m, nil)
}
