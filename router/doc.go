// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the gastroswipe API.

# Route Registration

NewRouter returns a CORS-wrapped http.ServeMux with all endpoints:

	handler := router.NewRouter(db, cfg, hub)

# Endpoints

Service:

	GET /health
	GET /metrics

Auth (signup, signin and signout are public):

	POST /api/auth/signup
	POST /api/auth/signin
	POST /api/auth/signout
	GET  /api/auth/session
	GET  /api/me/avatar
	PUT  /api/me/avatar

Groups:

	POST   /api/groups
	GET    /api/groups
	GET    /api/groups/{id}
	POST   /api/groups/{id}/invites
	POST   /api/invites/redeem
	DELETE /api/groups/{id}/members/me
	PUT    /api/groups/{id}/members/{uid}/role  - owner only

Chat and events:

	GET  /api/groups/{id}/messages
	POST /api/groups/{id}/messages
	GET  /api/groups/{id}/events
	GET  /api/groups/{id}/live      - websocket

Rounds:

	POST /api/groups/{id}/rounds
	GET  /api/groups/{id}/rounds/current
	PUT  /api/groups/{id}/rounds/{rid}/prefs
	POST /api/groups/{id}/rounds/{rid}/open
	GET  /api/groups/{id}/rounds/{rid}/candidates
	POST /api/groups/{id}/rounds/{rid}/swipes
	GET  /api/groups/{id}/rounds/{rid}/results
	POST /api/groups/{id}/rounds/{rid}/close

Restaurants (writes and geocoding are admin only):

	GET    /api/restaurants
	POST   /api/restaurants
	GET    /api/restaurants/{id}
	PATCH  /api/restaurants/{id}
	DELETE /api/restaurants/{id}
	GET    /api/cuisines
	GET    /api/cities
	POST   /api/restaurants/geo-batch
	POST   /api/restaurants/{id}/geocode

Every route except the service routes and the three public auth routes
requires a session cookie or bearer token.
*/
package router
