// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the gastroswipe API.

# Handler Types

Each handler is a struct with database and config dependencies:

  - AuthHandler: Signup, signin, session lookup and avatars
  - GroupHandler: Groups, invites and membership
  - MessageHandler: Chat, the event log and the live websocket
  - RoundHandler: Round lifecycle and swipes
  - RestaurantHandler: Catalog browsing and admin writes
  - GeoHandler: Batch and single restaurant geocoding

Handlers that publish live updates also take a *live.Hub, which may be nil:

	groupHandler := handlers.NewGroupHandler(db, cfg, hub)

The caller is identified by auth.UserIDFromContext(r.Context()), set by
middleware.RequireUser.

# Round Lifecycle

Rounds progress through three states: created → open → closed

	POST .../rounds            → CreateRound (host or owner)
	PUT  .../rounds/{rid}/prefs → UpdatePrefs (before open)
	POST .../rounds/{rid}/open  → OpenRound (snapshots candidates)
	POST .../rounds/{rid}/swipes → SubmitSwipes (open only, replaces)
	POST .../rounds/{rid}/close → CloseRound (publishes consensus)

Every transition appends a typed row to group_event and is pushed to live
clients after commit.

# Chat

Messages are plain text. A body that parses as a JSON object whose "type"
names an event kind is rejected so that chat cannot impersonate round actions.
*/
package handlers
