// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/danielhkuo/gastroswipe/models"
	"github.com/danielhkuo/gastroswipe/testutil"
)

type listResponse struct {
	Items []models.Restaurant `json:"items"`
	Meta  models.ListMeta     `json:"meta"`
}

func TestListRestaurants(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	handler := NewRestaurantHandler(db)
	userID := testutil.CreateTestUser(t, db, "user@example.com", "User")

	ramen := testutil.CreateTestRestaurant(t, db, "Ramen House", "Stockholm", 4.7, "$$", "ramen", "japanese")
	sushi := testutil.CreateTestRestaurant(t, db, "Sushi Go", "Stockholm", 4.5, "$$$", "japanese")
	tacos := testutil.CreateTestRestaurant(t, db, "Taco Town", "Gothenburg", 4.1, "$", "mexican")
	closed := testutil.CreateTestRestaurant(t, db, "Closed Diner", "Stockholm", 5.0, "$")
	if _, err := db.Exec(`UPDATE restaurant SET is_active = FALSE WHERE id = $1`, closed); err != nil {
		t.Fatalf("Failed to deactivate: %v", err)
	}

	tests := []struct {
		name          string
		query         string
		expectedIDs   []int64
		expectedTotal int
	}{
		{"all active by rating", "", []int64{ramen, sushi, tacos}, 3},
		{"city filter", "?city=stockholm", []int64{ramen, sushi}, 2},
		{"cuisine filter", "?cuisine=Japanese", []int64{ramen, sushi}, 2},
		{"name search", "?q=taco", []int64{tacos}, 1},
		{"paging", "?limit=1&offset=1", []int64{sushi}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.WithUser(httptest.NewRequest("GET", "/api/restaurants"+tt.query, nil), userID)
			w := httptest.NewRecorder()
			handler.ListRestaurants(w, req)
			testutil.AssertStatus(t, w, http.StatusOK)

			var resp listResponse
			testutil.AssertJSON(t, w, &resp)

			var ids []int64
			for _, r := range resp.Items {
				ids = append(ids, r.ID)
			}
			if !reflect.DeepEqual(ids, tt.expectedIDs) {
				t.Errorf("Expected %v, got %v", tt.expectedIDs, ids)
			}
			if resp.Meta.Total != tt.expectedTotal {
				t.Errorf("Expected total %d, got %d", tt.expectedTotal, resp.Meta.Total)
			}
		})
	}

	t.Run("limit out of range", func(t *testing.T) {
		req := testutil.WithUser(httptest.NewRequest("GET", "/api/restaurants?limit=0", nil), userID)
		w := httptest.NewRecorder()
		handler.ListRestaurants(w, req)
		testutil.AssertErrorCode(t, w, http.StatusUnprocessableEntity, models.CodeValidation)
	})
}

func TestGetRestaurant(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	handler := NewRestaurantHandler(db)
	userID := testutil.CreateTestUser(t, db, "user@example.com", "User")

	withGeo := testutil.CreateTestRestaurant(t, db, "Mapped", "Stockholm", 4.0, "$", "thai")
	withoutGeo := testutil.CreateTestRestaurant(t, db, "Unmapped", "Stockholm", 4.0, "$")
	testutil.SetTestGeo(t, db, withGeo, time.Now())

	tests := []struct {
		name           string
		id             string
		expectedStatus int
		expectGeo      bool
	}{
		{"with geo", fmt.Sprint(withGeo), http.StatusOK, true},
		{"without geo", fmt.Sprint(withoutGeo), http.StatusOK, false},
		{"unknown", "999999", http.StatusNotFound, false},
		{"malformed", "abc", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/restaurants/"+tt.id, nil)
			req.SetPathValue("id", tt.id)
			req = testutil.WithUser(req, userID)
			w := httptest.NewRecorder()

			handler.GetRestaurant(w, req)
			testutil.AssertStatus(t, w, tt.expectedStatus)

			if tt.expectedStatus != http.StatusOK {
				return
			}
			var rest models.Restaurant
			testutil.AssertData(t, w, &rest)
			if (rest.Geo != nil) != tt.expectGeo {
				t.Errorf("Expected geo present=%v, got %+v", tt.expectGeo, rest.Geo)
			}
		})
	}
}

func TestRestaurantAdminWrites(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	handler := NewRestaurantHandler(db)
	adminID := testutil.CreateTestUser(t, db, "admin@example.com", "Admin")
	testutil.MakeAdmin(t, db, adminID)
	userID := testutil.CreateTestUser(t, db, "user@example.com", "User")

	create := models.CreateRestaurantRequest{
		Name:       "Dumpling Den",
		Address:    "2 Side St",
		AvgRating:  4.3,
		PriceTag:   "$$",
		ParentCity: "Stockholm",
		Cuisines:   []string{"Chinese", " dumplings ", "chinese"},
	}

	t.Run("non-admin cannot create", func(t *testing.T) {
		req := testutil.WithUser(testutil.MakeRequest("POST", "/api/restaurants", create, nil), userID)
		w := httptest.NewRecorder()
		handler.CreateRestaurant(w, req)
		testutil.AssertErrorCode(t, w, http.StatusForbidden, models.CodeForbidden)
	})

	req := testutil.WithUser(testutil.MakeRequest("POST", "/api/restaurants", create, nil), adminID)
	w := httptest.NewRecorder()
	handler.CreateRestaurant(w, req)
	testutil.AssertStatus(t, w, http.StatusCreated)

	var rest models.Restaurant
	testutil.AssertData(t, w, &rest)
	if !reflect.DeepEqual(rest.Cuisines, []string{"chinese", "dumplings"}) {
		t.Errorf("Expected normalized cuisines, got %v", rest.Cuisines)
	}
	id := fmt.Sprint(rest.ID)

	t.Run("partial update", func(t *testing.T) {
		rating := 4.8
		req := testutil.MakeRequest("PATCH", "/api/restaurants/"+id, models.UpdateRestaurantRequest{AvgRating: &rating}, nil)
		req.SetPathValue("id", id)
		req = testutil.WithUser(req, adminID)
		w := httptest.NewRecorder()
		handler.UpdateRestaurant(w, req)
		testutil.AssertStatus(t, w, http.StatusOK)

		var updated models.Restaurant
		testutil.AssertData(t, w, &updated)
		if updated.Name != "Dumpling Den" || updated.AvgRating < 4.79 {
			t.Errorf("Unexpected update result %+v", updated)
		}
	})

	t.Run("invalid update", func(t *testing.T) {
		rating := 9.0
		req := testutil.MakeRequest("PATCH", "/api/restaurants/"+id, models.UpdateRestaurantRequest{AvgRating: &rating}, nil)
		req.SetPathValue("id", id)
		req = testutil.WithUser(req, adminID)
		w := httptest.NewRecorder()
		handler.UpdateRestaurant(w, req)
		testutil.AssertErrorCode(t, w, http.StatusUnprocessableEntity, models.CodeValidation)
	})

	t.Run("soft delete", func(t *testing.T) {
		req := httptest.NewRequest("DELETE", "/api/restaurants/"+id, nil)
		req.SetPathValue("id", id)
		req = testutil.WithUser(req, adminID)
		w := httptest.NewRecorder()
		handler.DeleteRestaurant(w, req)
		testutil.AssertStatus(t, w, http.StatusNoContent)

		var active bool
		if err := db.QueryRow(`SELECT is_active FROM restaurant WHERE id = $1`, rest.ID).Scan(&active); err != nil {
			t.Fatalf("Restaurant row should still exist: %v", err)
		}
		if active {
			t.Error("Expected restaurant to be deactivated")
		}
	})
}

func TestListCuisinesAndCities(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	handler := NewRestaurantHandler(db)
	userID := testutil.CreateTestUser(t, db, "user@example.com", "User")

	testutil.CreateTestRestaurant(t, db, "A", "Stockholm", 4.0, "$", "pizza", "italian")
	testutil.CreateTestRestaurant(t, db, "B", "Stockholm", 4.0, "$", "pizza")
	testutil.CreateTestRestaurant(t, db, "C", "Oslo", 4.0, "$", "sushi")

	req := testutil.WithUser(httptest.NewRequest("GET", "/api/cuisines", nil), userID)
	w := httptest.NewRecorder()
	handler.ListCuisines(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)

	var cuisines struct {
		Items []models.CuisineCount `json:"items"`
	}
	testutil.AssertJSON(t, w, &cuisines)
	expected := []models.CuisineCount{
		{Cuisine: "italian", RestaurantCount: 1},
		{Cuisine: "pizza", RestaurantCount: 2},
		{Cuisine: "sushi", RestaurantCount: 1},
	}
	if !reflect.DeepEqual(cuisines.Items, expected) {
		t.Errorf("Expected %v, got %v", expected, cuisines.Items)
	}

	req = testutil.WithUser(httptest.NewRequest("GET", "/api/cities", nil), userID)
	w = httptest.NewRecorder()
	handler.ListCities(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)

	var cities struct {
		Items []models.CityCount `json:"items"`
	}
	testutil.AssertJSON(t, w, &cities)
	expectedCities := []models.CityCount{
		{City: "Oslo", RestaurantCount: 1},
		{City: "Stockholm", RestaurantCount: 2},
	}
	if !reflect.DeepEqual(cities.Items, expectedCities) {
		t.Errorf("Expected %v, got %v", expectedCities, cities.Items)
	}
}
