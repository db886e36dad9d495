// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/danielhkuo/gastroswipe/auth"
	"github.com/danielhkuo/gastroswipe/models"
)

// SessionToken returns the session token from the cookie or a Bearer header
func SessionToken(r *http.Request) string {
	if c, err := r.Cookie(auth.SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// RequireUser resolves the session and stores the user ID in the request context.
// Requests without a valid session get 401.
func RequireUser(secret string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				ErrorWithCode(w, http.StatusUnauthorized, models.CodeUnauthenticated, "Sign in required")
				return
			}

			userID, _, err := auth.ParseSession(token, secret)
			if err != nil {
				ErrorWithCode(w, http.StatusUnauthorized, models.CodeUnauthenticated, "Session is invalid or expired")
				return
			}

			next(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
		}
	}
}

// SetSessionCookie stores a session token on the response
func SetSessionCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie
func ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
