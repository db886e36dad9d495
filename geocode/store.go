// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package geocode

import (
	"context"
	"database/sql"
	"time"
)

// PGStore reads candidates through the geo_candidates procedure and writes restaurant_geo
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Candidates returns active restaurants, never-geocoded first, then stalest
func (s *PGStore) Candidates(ctx context.Context, limit int) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, address, parent_city, geo_updated_at
		FROM geo_candidates($1)
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := []Candidate{}
	for rows.Next() {
		var c Candidate
		var updatedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.City, &updatedAt); err != nil {
			return nil, err
		}
		if updatedAt.Valid {
			t := updatedAt.Time
			c.GeoUpdatedAt = &t
		}
		candidates = append(candidates, c)
	}

	return candidates, rows.Err()
}

// UpsertGeo stores coordinates keyed by restaurant ID
func (s *PGStore) UpsertGeo(ctx context.Context, restaurantID int64, r Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO restaurant_geo (restaurant_id, lat, lng, place_id, formatted_address, accuracy, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (restaurant_id) DO UPDATE SET
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			place_id = EXCLUDED.place_id,
			formatted_address = EXCLUDED.formatted_address,
			accuracy = EXCLUDED.accuracy,
			updated_at = EXCLUDED.updated_at
	`, restaurantID, r.Lat, r.Lng, r.PlaceID, r.FormattedAddress, r.Accuracy, time.Now())

	return err
}
