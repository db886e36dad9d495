// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles database schema creation.

# Schema Creation

CreateSchema initializes all required tables and stored procedures:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for tables and indexes and
CREATE OR REPLACE for functions.

# Tables

  - app_user, admin, user_avatar: accounts, elevated access, avatar seeds
  - restaurant, restaurant_geo: swipe candidates and their coordinates
  - dining_group, group_member, group_invite: groups and membership
  - group_message: chat text
  - round, round_candidate, round_submission: swipe rounds and per-user swipes
  - group_event: typed event log (round_start, host_prefs, swipe_results,
    publish_results, force_results, player_join)

# Relationships

	dining_group 1──* group_member *──1 app_user
	dining_group 1──* group_message
	dining_group 1──* round 1──* round_submission
	round 1──* round_candidate *──1 restaurant
	restaurant 1──0..1 restaurant_geo

# Invariants

  - At most one non-closed round per group (partial unique index).
  - One submission per user per round (primary key); resubmitting replaces it.

# Stored Procedures

  - geo_candidates(limit): active restaurants, never-geocoded first, then oldest
  - list_cuisines(): distinct cuisines of active restaurants with counts
*/
package db
