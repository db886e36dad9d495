// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielhkuo/gastroswipe/auth"
	"github.com/danielhkuo/gastroswipe/cliparse"
	"github.com/danielhkuo/gastroswipe/middleware"
	"github.com/danielhkuo/gastroswipe/models"
	"github.com/google/uuid"
)

type AuthHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewAuthHandler(db *sql.DB, cfg cliparse.Config) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg}
}

// SignUp handles POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req models.SignUpRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if fields := middleware.Validate(&req); fields != nil {
		middleware.ValidationError(w, fields)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		middleware.InternalError(w, "failed to hash password", err)
		return
	}

	user := models.User{
		ID:          uuid.NewString(),
		Email:       req.Email,
		DisplayName: req.DisplayName,
	}
	err = h.db.QueryRowContext(r.Context(), `
		INSERT INTO app_user (id, email, password_hash, display_name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, user.ID, user.Email, hash, user.DisplayName).Scan(&user.CreatedAt)
	if isUniqueViolation(err) {
		middleware.ErrorWithCode(w, http.StatusConflict, models.CodeEmailTaken, "An account with this email already exists")
		return
	}
	if err != nil {
		middleware.InternalError(w, "failed to insert user", err)
		return
	}

	slog.Info("user signed up", "user_id", user.ID)
	h.startSession(w, r, http.StatusCreated, user, false)
}

// SignIn handles POST /api/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req models.SignInRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if fields := middleware.Validate(&req); fields != nil {
		middleware.ValidationError(w, fields)
		return
	}

	var user models.User
	var hash string
	err := h.db.QueryRowContext(r.Context(), `
		SELECT id, email, display_name, created_at, password_hash
		FROM app_user WHERE email = $1
	`, req.Email).Scan(&user.ID, &user.Email, &user.DisplayName, &user.CreatedAt, &hash)
	if err == sql.ErrNoRows {
		middleware.ErrorWithCode(w, http.StatusUnauthorized, models.CodeInvalidCreds, "Invalid email or password")
		return
	}
	if err != nil {
		middleware.InternalError(w, "failed to query user", err)
		return
	}

	if err := auth.CheckPassword(hash, req.Password); err != nil {
		middleware.ErrorWithCode(w, http.StatusUnauthorized, models.CodeInvalidCreds, "Invalid email or password")
		return
	}

	admin, err := isAdmin(r.Context(), h.db, user.ID)
	if err != nil {
		middleware.InternalError(w, "failed to check admin", err)
		return
	}

	slog.Info("user signed in", "user_id", user.ID)
	h.startSession(w, r, http.StatusOK, user, admin)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, status int, user models.User, admin bool) {
	token, expiresAt, err := auth.IssueSession(user.ID, h.cfg.SessionSecret, auth.SessionTTL)
	if err != nil {
		middleware.InternalError(w, "failed to issue session", err)
		return
	}

	middleware.SetSessionCookie(w, r, token, expiresAt)
	middleware.Data(w, status, models.SessionResponse{
		User:      user,
		IsAdmin:   admin,
		ExpiresAt: expiresAt,
		Token:     token,
	}, nil)
}

// SignOut handles POST /api/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	middleware.ClearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)

	var user models.User
	err := h.db.QueryRowContext(r.Context(), `
		SELECT id, email, display_name, created_at FROM app_user WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.CreatedAt)
	if err == sql.ErrNoRows {
		// Token outlived the account
		middleware.ClearSessionCookie(w, r)
		middleware.ErrorWithCode(w, http.StatusUnauthorized, models.CodeUnauthenticated, "Session user no longer exists")
		return
	}
	if err != nil {
		middleware.InternalError(w, "failed to query user", err)
		return
	}

	admin, err := isAdmin(r.Context(), h.db, userID)
	if err != nil {
		middleware.InternalError(w, "failed to check admin", err)
		return
	}

	_, expiresAt, _ := auth.ParseSession(middleware.SessionToken(r), h.cfg.SessionSecret)

	middleware.Data(w, http.StatusOK, models.SessionResponse{
		User:      user,
		IsAdmin:   admin,
		ExpiresAt: expiresAt,
	}, nil)
}

// GetAvatar handles GET /api/me/avatar
func (h *AuthHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)

	seed := userID
	err := h.db.QueryRowContext(r.Context(), `
		SELECT avatar_seed FROM user_avatar WHERE user_id = $1
	`, userID).Scan(&seed)
	if err != nil && err != sql.ErrNoRows {
		middleware.InternalError(w, "failed to query avatar", err)
		return
	}

	middleware.Data(w, http.StatusOK, models.AvatarResponse{UserID: userID, AvatarSeed: seed}, nil)
}

// PutAvatar handles PUT /api/me/avatar
func (h *AuthHandler) PutAvatar(w http.ResponseWriter, r *http.Request) {
	var req models.AvatarRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.AvatarSeed = strings.TrimSpace(req.AvatarSeed)
	if fields := middleware.Validate(&req); fields != nil {
		middleware.ValidationError(w, fields)
		return
	}

	userID := currentUser(r)
	_, err := h.db.ExecContext(r.Context(), `
		INSERT INTO user_avatar (user_id, avatar_seed, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET avatar_seed = EXCLUDED.avatar_seed, updated_at = NOW()
	`, userID, req.AvatarSeed)
	if err != nil {
		middleware.InternalError(w, "failed to upsert avatar", err)
		return
	}

	middleware.Data(w, http.StatusOK, models.AvatarResponse{UserID: userID, AvatarSeed: req.AvatarSeed}, nil)
}
