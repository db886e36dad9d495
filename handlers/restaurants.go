// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielhkuo/gastroswipe/middleware"
	"github.com/danielhkuo/gastroswipe/models"
	"github.com/lib/pq"
)

// Restaurant listing bounds
const (
	DefaultRestaurantLimit = 20
	MaxRestaurantLimit     = 100
)

// restaurantColumns expects the restaurant table aliased as r
const restaurantColumns = `r.id, r.name, r.address, r.avg_rating, r.review_count, r.price_tag, r.parent_city, r.cuisines, r.is_active, r.created_at`

func scanRestaurant(row interface{ Scan(...any) error }, extra ...any) (models.Restaurant, error) {
	var rest models.Restaurant
	dest := []any{
		&rest.ID, &rest.Name, &rest.Address, &rest.AvgRating, &rest.ReviewCount,
		&rest.PriceTag, &rest.ParentCity, pq.Array(&rest.Cuisines), &rest.IsActive, &rest.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return models.Restaurant{}, err
	}
	if rest.Cuisines == nil {
		rest.Cuisines = []string{}
	}
	return rest, nil
}

func restaurantIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		middleware.ErrorWithCode(w, http.StatusNotFound, models.CodeNotFound, "Restaurant not found")
		return 0, false
	}
	return id, true
}

func normalizeCuisines(in []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, c := range in {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

type RestaurantHandler struct {
	db *sql.DB
}

func NewRestaurantHandler(db *sql.DB) *RestaurantHandler {
	return &RestaurantHandler{db: db}
}

// ListRestaurants handles GET /api/restaurants
func (h *RestaurantHandler) ListRestaurants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, ok := parseLimit(r, "limit", DefaultRestaurantLimit, MaxRestaurantLimit)
	if !ok {
		middleware.ValidationError(w, map[string]string{"limit": "OUT_OF_RANGE"})
		return
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			middleware.ValidationError(w, map[string]string{"offset": "OUT_OF_RANGE"})
			return
		}
		offset = n
	}

	city := strings.TrimSpace(q.Get("city"))
	cuisine := strings.ToLower(strings.TrimSpace(q.Get("cuisine")))
	search := strings.TrimSpace(q.Get("q"))

	const filter = `
		WHERE r.is_active
			AND ($1 = '' OR r.parent_city ILIKE $1)
			AND ($2 = '' OR $2 = ANY(r.cuisines))
			AND ($3 = '' OR r.name ILIKE '%' || $3 || '%')
	`

	var total int
	err := h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM restaurant r `+filter, city, cuisine, search).Scan(&total)
	if err != nil {
		middleware.InternalError(w, "failed to count restaurants", err)
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT `+restaurantColumns+` FROM restaurant r `+filter+`
		ORDER BY r.avg_rating DESC, r.review_count DESC, r.id
		LIMIT $4 OFFSET $5
	`, city, cuisine, search, limit, offset)
	if err != nil {
		middleware.InternalError(w, "failed to query restaurants", err)
		return
	}
	defer rows.Close()

	restaurants := []models.Restaurant{}
	for rows.Next() {
		rest, err := scanRestaurant(rows)
		if err != nil {
			middleware.InternalError(w, "failed to scan restaurant", err)
			return
		}
		restaurants = append(restaurants, rest)
	}
	if err := rows.Err(); err != nil {
		middleware.InternalError(w, "failed to iterate restaurants", err)
		return
	}

	middleware.Items(w, restaurants, models.ListMeta{Total: total, Limit: limit, Offset: offset})
}

// GetRestaurant handles GET /api/restaurants/{id}
func (h *RestaurantHandler) GetRestaurant(w http.ResponseWriter, r *http.Request) {
	id, ok := restaurantIDFromPath(w, r)
	if !ok {
		return
	}

	var lat, lng sql.NullFloat64
	var placeID, formatted, accuracy sql.NullString
	var geoUpdated sql.NullTime
	rest, err := scanRestaurant(h.db.QueryRowContext(r.Context(), `
		SELECT `+restaurantColumns+`,
			g.lat, g.lng, g.place_id, g.formatted_address, g.accuracy, g.updated_at
		FROM restaurant r
		LEFT JOIN restaurant_geo g ON g.restaurant_id = r.id
		WHERE r.id = $1
	`, id), &lat, &lng, &placeID, &formatted, &accuracy, &geoUpdated)
	if err == sql.ErrNoRows {
		middleware.ErrorWithCode(w, http.StatusNotFound, models.CodeNotFound, "Restaurant not found")
		return
	}
	if err != nil {
		middleware.InternalError(w, "failed to query restaurant", err)
		return
	}

	if geoUpdated.Valid {
		rest.Geo = &models.RestaurantGeo{
			Lat:              lat.Float64,
			Lng:              lng.Float64,
			PlaceID:          placeID.String,
			FormattedAddress: formatted.String,
			Accuracy:         accuracy.String,
			UpdatedAt:        geoUpdated.Time,
		}
	}

	middleware.Data(w, http.StatusOK, rest, nil)
}

// CreateRestaurant handles POST /api/restaurants (admin)
func (h *RestaurantHandler) CreateRestaurant(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.db) {
		return
	}

	var req models.CreateRestaurantRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.ParentCity = strings.TrimSpace(req.ParentCity)
	if fields := middleware.Validate(&req); fields != nil {
		middleware.ValidationError(w, fields)
		return
	}

	rest, err := scanRestaurant(h.db.QueryRowContext(r.Context(), `
		INSERT INTO restaurant AS r (name, address, avg_rating, review_count, price_tag, parent_city, cuisines)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+restaurantColumns,
		req.Name, strings.TrimSpace(req.Address), req.AvgRating, req.ReviewCount,
		strings.TrimSpace(req.PriceTag), req.ParentCity, pq.Array(normalizeCuisines(req.Cuisines))))
	if err != nil {
		middleware.InternalError(w, "failed to insert restaurant", err)
		return
	}

	slog.Info("restaurant created", "restaurant_id", rest.ID, "city", rest.ParentCity)
	middleware.Data(w, http.StatusCreated, rest, nil)
}

// UpdateRestaurant handles PATCH /api/restaurants/{id} (admin)
func (h *RestaurantHandler) UpdateRestaurant(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.db) {
		return
	}
	id, ok := restaurantIDFromPath(w, r)
	if !ok {
		return
	}

	var req models.UpdateRestaurantRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

	sets := []string{}
	args := []any{}
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if req.Name != nil {
		set("name", strings.TrimSpace(*req.Name))
	}
	if req.Address != nil {
		set("address", strings.TrimSpace(*req.Address))
	}
	if req.AvgRating != nil {
		set("avg_rating", *req.AvgRating)
	}
	if req.ReviewCount != nil {
		set("review_count", *req.ReviewCount)
	}
	if req.PriceTag != nil {
		set("price_tag", strings.TrimSpace(*req.PriceTag))
	}
	if req.ParentCity != nil {
		set("parent_city", strings.TrimSpace(*req.ParentCity))
	}
	if req.Cuisines != nil {
		set("cuisines", pq.Array(normalizeCuisines(*req.Cuisines)))
	}
	if req.IsActive != nil {
		set("is_active", *req.IsActive)
	}

	if len(sets) == 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "No fields to update")
		return
	}

	args = append(args, id)
	rest, err := scanRestaurant(h.db.QueryRowContext(r.Context(), fmt.Sprintf(`
		UPDATE restaurant AS r SET %s WHERE r.id = $%d
		RETURNING %s
	`, strings.Join(sets, ", "), len(args), restaurantColumns), args...))
	if err == sql.ErrNoRows {
		middleware.ErrorWithCode(w, http.StatusNotFound, models.CodeNotFound, "Restaurant not found")
		return
	}
	if err != nil {
		middleware.InternalError(w, "failed to update restaurant", err)
		return
	}

	slog.Info("restaurant updated", "restaurant_id", id, "fields", len(sets))
	middleware.Data(w, http.StatusOK, rest, nil)
}

// DeleteRestaurant handles DELETE /api/restaurants/{id} (admin).
// Rows are deactivated, never removed, so past rounds keep their candidates.
func (h *RestaurantHandler) DeleteRestaurant(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.db) {
		return
	}
	id, ok := restaurantIDFromPath(w, r)
	if !ok {
		return
	}

	res, err := h.db.ExecContext(r.Context(), `UPDATE restaurant SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		middleware.InternalError(w, "failed to deactivate restaurant", err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		middleware.ErrorWithCode(w, http.StatusNotFound, models.CodeNotFound, "Restaurant not found")
		return
	}

	slog.Info("restaurant deactivated", "restaurant_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// ListCuisines handles GET /api/cuisines
func (h *RestaurantHandler) ListCuisines(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.QueryContext(r.Context(), `SELECT cuisine, restaurant_count FROM list_cuisines()`)
	if err != nil {
		middleware.InternalError(w, "failed to query cuisines", err)
		return
	}
	defer rows.Close()

	cuisines := []models.CuisineCount{}
	for rows.Next() {
		var c models.CuisineCount
		if err := rows.Scan(&c.Cuisine, &c.RestaurantCount); err != nil {
			middleware.InternalError(w, "failed to scan cuisine", err)
			return
		}
		cuisines = append(cuisines, c)
	}
	if err := rows.Err(); err != nil {
		middleware.InternalError(w, "failed to iterate cuisines", err)
		return
	}

	middleware.Items(w, cuisines, nil)
}

// ListCities handles GET /api/cities
func (h *RestaurantHandler) ListCities(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.QueryContext(r.Context(), `
		SELECT parent_city, COUNT(*) FROM restaurant
		WHERE is_active
		GROUP BY parent_city
		ORDER BY parent_city
	`)
	if err != nil {
		middleware.InternalError(w, "failed to query cities", err)
		return
	}
	defer rows.Close()

	cities := []models.CityCount{}
	for rows.Next() {
		var c models.CityCount
		if err := rows.Scan(&c.City, &c.RestaurantCount); err != nil {
			middleware.InternalError(w, "failed to scan city", err)
			return
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		middleware.InternalError(w, "failed to iterate cities", err)
		return
	}

	middleware.Items(w, cities, nil)
}
