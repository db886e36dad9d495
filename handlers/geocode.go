// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/gastroswipe/cliparse"
	"github.com/danielhkuo/gastroswipe/geocode"
	"github.com/danielhkuo/gastroswipe/middleware"
	"github.com/danielhkuo/gastroswipe/models"
)

type GeoHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewGeoHandler(db *sql.DB, cfg cliparse.Config) *GeoHandler {
	return &GeoHandler{db: db, cfg: cfg}
}

func (h *GeoHandler) client() *geocode.Client {
	base := h.cfg.GeocodeBaseURL
	if base == "" {
		base = cliparse.DefaultGeocodeBaseURL
	}
	return geocode.NewClient(base, h.cfg.GeocodeAPIKey)
}

func (h *GeoHandler) requireAPIKey(w http.ResponseWriter) bool {
	if h.cfg.GeocodeAPIKey == "" {
		middleware.ErrorWithCode(w, http.StatusInternalServerError, models.CodeConfigMissing,
			"GOOGLE_MAPS_API_KEY is not configured")
		return false
	}
	return true
}

// GeoBatch handles POST /api/restaurants/geo-batch (admin)
func (h *GeoHandler) GeoBatch(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.db) {
		return
	}

	var req geocode.BatchRequest
	if err := middleware.ParseOptionalJSONBody(r, &req); err != nil {
		middleware.ValidationError(w, map[string]string{"body": "INVALID"})
		return
	}
	if !h.requireAPIKey(w) {
		return
	}

	opts := geocode.ClampOptions(req)
	slog.Info("geo batch requested",
		"user_id", currentUser(r),
		"limit", opts.Limit,
		"concurrency", opts.Concurrency,
		"force", opts.Force,
	)

	runner := geocode.NewRunner(geocode.NewPGStore(h.db), h.client())
	summary, err := runner.Run(r.Context(), opts)
	if err != nil {
		middleware.InternalError(w, "geo batch failed", err)
		return
	}

	middleware.Data(w, http.StatusOK, summary, opts)
}

// GeocodeOne handles POST /api/restaurants/{id}/geocode (admin)
func (h *GeoHandler) GeocodeOne(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.db) {
		return
	}
	id, ok := restaurantIDFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireAPIKey(w) {
		return
	}

	var name, address, city string
	err := h.db.QueryRowContext(r.Context(), `
		SELECT name, address, parent_city FROM restaurant WHERE id = $1
	`, id).Scan(&name, &address, &city)
	if err == sql.ErrNoRows {
		middleware.ErrorWithCode(w, http.StatusNotFound, models.CodeNotFound, "Restaurant not found")
		return
	}
	if err != nil {
		middleware.InternalError(w, "failed to query restaurant", err)
		return
	}

	res, err := h.client().Geocode(r.Context(), geocode.Address(name, address, city))
	if err != nil {
		var gerr *geocode.Error
		if errors.As(err, &gerr) {
			slog.Warn("geocode failed", "restaurant_id", id, "code", gerr.Code, "error", gerr.Err)
			middleware.ErrorWithCode(w, http.StatusBadGateway, gerr.Code, "Geocoding failed")
			return
		}
		middleware.InternalError(w, "geocode failed", err)
		return
	}

	if err := geocode.NewPGStore(h.db).UpsertGeo(r.Context(), id, res); err != nil {
		slog.Error("geo upsert failed", "restaurant_id", id, "error", err)
		middleware.ErrorWithCode(w, http.StatusInternalServerError, geocode.CodeUpsertFailed, "Failed to store coordinates")
		return
	}

	var geo models.RestaurantGeo
	err = h.db.QueryRowContext(r.Context(), `
		SELECT lat, lng, place_id, formatted_address, accuracy, updated_at
		FROM restaurant_geo WHERE restaurant_id = $1
	`, id).Scan(&geo.Lat, &geo.Lng, &geo.PlaceID, &geo.FormattedAddress, &geo.Accuracy, &geo.UpdatedAt)
	if err != nil {
		middleware.InternalError(w, "failed to reload geo", err)
		return
	}

	slog.Info("restaurant geocoded", "restaurant_id", id, "accuracy", geo.Accuracy)
	middleware.Data(w, http.StatusOK, geo, nil)
}
