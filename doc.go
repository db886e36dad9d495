// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the gastroswipe API server.

gastroswipe helps a group of friends pick a restaurant. Members join a group
with an invite code, chat, and swipe through a shortlist of restaurants in
rounds. Closing a round publishes the restaurants everyone accepted.

# Starting the Server

The server reads a .env file if present, then environment variables or CLI flags:

	DATABASE_URL=postgres://... SESSION_SECRET=... go run .

Or with flags:

	go run . -p 3318 -d "postgres://..." --session-secret dev-only

# Configuration

Required settings:

  - DATABASE_URL (-d): PostgreSQL connection string
  - SESSION_SECRET (--session-secret): HMAC key for session tokens

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - SITE_URL (--site-url): Base URL for invite links
  - GOOGLE_MAPS_API_KEY (--maps-key): Enables geocoding endpoints
  - GEOCODE_BASE_URL (--geocode-url): Geocoding endpoint override
  - CORS_ORIGINS (--cors-origins): Comma separated origins (default: *)
  - LOG_LEVEL (--log-level): debug, info, warn or error (default: info)

# Architecture

  - handlers: HTTP request handlers (auth, groups, messages, rounds, restaurants, geocoding)
  - router: Route definitions using Go 1.22+ routing
  - middleware: CORS, logging, sessions, JSON and validation helpers
  - live: Websocket fan-out of messages and events
  - consensus: Intersection of accepted restaurants
  - geocode: Geocoding client and batch runner
  - metrics: Prometheus collectors
  - models: Request/response types
  - auth: Passwords, session tokens, invite codes
  - db: Schema creation
  - cliparse: Configuration parsing
*/
package main
