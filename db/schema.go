// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables and stored procedures needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS / CREATE OR REPLACE.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Schema is exported so test fixtures build the exact same database
const Schema = `
-- Users
CREATE TABLE IF NOT EXISTS app_user (
    id UUID PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    display_name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS admin (
    user_id UUID PRIMARY KEY REFERENCES app_user(id) ON DELETE CASCADE,
    granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_avatar (
    user_id UUID PRIMARY KEY REFERENCES app_user(id) ON DELETE CASCADE,
    avatar_seed TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Restaurants
CREATE TABLE IF NOT EXISTS restaurant (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    address TEXT NOT NULL DEFAULT '',
    avg_rating REAL NOT NULL DEFAULT 0 CHECK (avg_rating >= 0 AND avg_rating <= 5),
    review_count INTEGER NOT NULL DEFAULT 0 CHECK (review_count >= 0),
    price_tag TEXT NOT NULL DEFAULT '',
    parent_city TEXT NOT NULL,
    cuisines TEXT[] NOT NULL DEFAULT '{}',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_restaurant_city ON restaurant(parent_city);
CREATE INDEX IF NOT EXISTS idx_restaurant_cuisines ON restaurant USING GIN (cuisines);

CREATE TABLE IF NOT EXISTS restaurant_geo (
    restaurant_id BIGINT PRIMARY KEY REFERENCES restaurant(id) ON DELETE CASCADE,
    lat DOUBLE PRECISION NOT NULL,
    lng DOUBLE PRECISION NOT NULL,
    place_id TEXT NOT NULL DEFAULT '',
    formatted_address TEXT NOT NULL DEFAULT '',
    accuracy TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Groups
CREATE TABLE IF NOT EXISTS dining_group (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    created_by UUID NOT NULL REFERENCES app_user(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS group_member (
    group_id UUID NOT NULL REFERENCES dining_group(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    role TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('member', 'host', 'owner')),
    joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (group_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_group_member_user ON group_member(user_id);

CREATE TABLE IF NOT EXISTS group_invite (
    code TEXT PRIMARY KEY,
    group_id UUID NOT NULL REFERENCES dining_group(id) ON DELETE CASCADE,
    created_by UUID NOT NULL REFERENCES app_user(id),
    expires_at TIMESTAMPTZ NOT NULL,
    max_uses INTEGER NOT NULL DEFAULT 0,
    uses INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS group_message (
    id UUID PRIMARY KEY,
    group_id UUID NOT NULL REFERENCES dining_group(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES app_user(id),
    author_alias TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_group_message_group_created ON group_message(group_id, created_at);

-- Rounds
CREATE TABLE IF NOT EXISTS round (
    id UUID PRIMARY KEY,
    group_id UUID NOT NULL REFERENCES dining_group(id) ON DELETE CASCADE,
    started_by UUID NOT NULL REFERENCES app_user(id),
    status TEXT NOT NULL DEFAULT 'created' CHECK (status IN ('created', 'open', 'closed')),
    prefs JSONB NOT NULL DEFAULT '{}',
    forced BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    opened_at TIMESTAMPTZ,
    closed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_round_group_created ON round(group_id, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_round_one_active ON round(group_id) WHERE status <> 'closed';

CREATE TABLE IF NOT EXISTS round_candidate (
    round_id UUID NOT NULL REFERENCES round(id) ON DELETE CASCADE,
    restaurant_id BIGINT NOT NULL REFERENCES restaurant(id) ON DELETE CASCADE,
    sort_order INTEGER NOT NULL,
    PRIMARY KEY (round_id, restaurant_id)
);

CREATE TABLE IF NOT EXISTS round_submission (
    round_id UUID NOT NULL REFERENCES round(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    accepted_ids BIGINT[] NOT NULL DEFAULT '{}',
    submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (round_id, user_id)
);

-- Typed event log (replaces control messages embedded in chat)
CREATE TABLE IF NOT EXISTS group_event (
    id BIGSERIAL PRIMARY KEY,
    group_id UUID NOT NULL REFERENCES dining_group(id) ON DELETE CASCADE,
    round_id UUID REFERENCES round(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES app_user(id),
    kind TEXT NOT NULL CHECK (kind IN ('round_start', 'host_prefs', 'swipe_results', 'publish_results', 'force_results', 'player_join')),
    payload JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_group_event_group ON group_event(group_id, id);

-- Stored procedures
CREATE OR REPLACE FUNCTION geo_candidates(p_limit INTEGER)
RETURNS TABLE (id BIGINT, name TEXT, address TEXT, parent_city TEXT, geo_updated_at TIMESTAMPTZ)
LANGUAGE sql STABLE AS $$
    SELECT r.id, r.name, r.address, r.parent_city, g.updated_at
    FROM restaurant r
    LEFT JOIN restaurant_geo g ON g.restaurant_id = r.id
    WHERE r.is_active
    ORDER BY g.updated_at ASC NULLS FIRST, r.id ASC
    LIMIT p_limit
$$;

CREATE OR REPLACE FUNCTION list_cuisines()
RETURNS TABLE (cuisine TEXT, restaurant_count BIGINT)
LANGUAGE sql STABLE AS $$
    SELECT c, COUNT(*)
    FROM restaurant r, UNNEST(r.cuisines) AS c
    WHERE r.is_active
    GROUP BY c
    ORDER BY c
$$;
`
