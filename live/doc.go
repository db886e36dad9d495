// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package live pushes group chat messages and typed group events to websocket
clients.

Handlers persist first, then publish:

	hub.Publish(groupID, live.Event{Type: live.TypeEvent, Payload: ev})

Each client has a small buffered send queue drained by its own write
goroutine. Publish never blocks: a client whose queue is full is removed and
its connection closed. Clients that miss frames catch up through
GET /api/groups/{id}/events?after=<id>.
*/
package live
