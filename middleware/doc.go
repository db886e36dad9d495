// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs completion (method, path, status, duration_ms) and records
gastroswipe_http_requests_total and request latency under the mux route
pattern, so /api/groups/{id} is one series regardless of the ID.

# Sessions

RequireUser reads the gs_session cookie or an "Authorization: Bearer" header,
verifies it, and places the user ID in the request context:

	mux.HandleFunc("GET /api/groups", logged(requireUser(h.ListGroups)))

	userID, _ := auth.UserIDFromContext(r.Context())

# CORS Middleware

	handler := middleware.CORS(cfg.CORSOrigins)(mux)

# JSON Helpers

Responses use the data/items/error envelope:

	middleware.Data(w, http.StatusCreated, group, nil)
	middleware.Items(w, groups, nil)
	middleware.ErrorResponse(w, http.StatusNotFound, "Group not found")
	middleware.ErrorWithCode(w, http.StatusConflict, models.CodeRoundActive, "...")

Parse and validate request bodies in one step:

	var req models.CreateGroupRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

Malformed JSON is a 400; tag violations are a 422 with per-field codes
(REQUIRED, TOO_SHORT, TOO_LONG, TOO_SMALL, TOO_LARGE, OUT_OF_RANGE,
INVALID_EMAIL, INVALID_CHOICE).
*/
package middleware
