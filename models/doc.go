// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Envelopes

Every JSON body is wrapped:

  - DataResponse: data, meta (single objects)
  - ItemsResponse: items, meta (lists)
  - ErrorResponse: error, code, message, fields (per-field validation codes)

# Request Types

Request structs carry validate tags checked by middleware.DecodeAndValidate:

  - SignUpRequest, SignInRequest, AvatarRequest
  - CreateGroupRequest, CreateInviteRequest, RedeemInviteRequest
  - PostMessageRequest
  - RoundPrefs, SubmitSwipesRequest, CloseRoundRequest
  - CreateRestaurantRequest, UpdateRestaurantRequest (pointer fields, nil = unchanged)

# Domain Types

  - User, Member, GroupSummary, GroupDetail
  - Message: chat text only
  - Event: typed group event (round_start, host_prefs, swipe_results,
    publish_results, force_results, player_join)
  - Round: created -> open -> closed
  - Restaurant, RestaurantGeo, CuisineCount, CityCount

# Constants

Roles:

	RoleMember = "member"
	RoleHost   = "host"
	RoleOwner  = "owner"

Round status:

	StatusCreated = "created"
	StatusOpen    = "open"
	StatusClosed  = "closed"
*/
package models
