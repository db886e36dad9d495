// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth handles passwords, session tokens, invite codes and the
request-scoped user identity.

# Passwords

Passwords are stored as bcrypt hashes:

	hash, err := auth.HashPassword(password)
	err = auth.CheckPassword(hash, candidate) // ErrInvalidCredentials on mismatch

# Sessions

Sessions are HS256 JWTs whose subject is the user ID. They travel in the
gs_session cookie or an Authorization: Bearer header:

	token, expiresAt, err := auth.IssueSession(userID, cfg.SessionSecret, auth.SessionTTL)
	userID, expiresAt, err := auth.ParseSession(token, cfg.SessionSecret)

Tokens with another algorithm, issuer, a missing subject, or no expiry are
rejected with ErrInvalidSession.

# Current User

The authenticated user is passed explicitly through the request context by
middleware.RequireUser:

	ctx = auth.WithUserID(ctx, userID)
	userID, ok := auth.UserIDFromContext(r.Context())

# Invite Codes

GenerateInviteCode returns 64 random bits encoded in base62 (0-9, a-z, A-Z).
*/
package auth
