// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielhkuo/gastroswipe/cliparse"
	"github.com/danielhkuo/gastroswipe/geocode"
	"github.com/danielhkuo/gastroswipe/models"
	"github.com/danielhkuo/gastroswipe/testutil"
)

// fakeGeocodeAPI serves a fixed JSON body and counts calls
func fakeGeocodeAPI(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

const okGeocodeBody = `{
	"status": "OK",
	"results": [{
		"place_id": "place-1",
		"formatted_address": "1 Main St, Stockholm",
		"geometry": {"location": {"lat": 59.3293, "lng": 18.0686}, "location_type": "ROOFTOP"}
	}]
}`

func geoConfig(baseURL string) cliparse.Config {
	cfg := testutil.GetTestConfig()
	cfg.GeocodeBaseURL = baseURL
	return cfg
}

func runGeoBatch(t *testing.T, handler *GeoHandler, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.WithUser(testutil.MakeRequest("POST", "/api/restaurants/geo-batch", body, nil), userID)
	w := httptest.NewRecorder()
	handler.GeoBatch(w, req)
	return w
}

func TestGeoBatchAllCallsFail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	srv, calls := fakeGeocodeAPI(t, http.StatusOK, `{"status":"REQUEST_DENIED","error_message":"bad key"}`)
	handler := NewGeoHandler(db, geoConfig(srv.URL))

	adminID := testutil.CreateTestUser(t, db, "admin@example.com", "Admin")
	testutil.MakeAdmin(t, db, adminID)
	for i := 0; i < 4; i++ {
		testutil.CreateTestRestaurant(t, db, fmt.Sprintf("Place %d", i), "Stockholm", 4.0, "$")
	}

	w := runGeoBatch(t, handler, adminID, map[string]int{"concurrency": 2, "delayMs": 50})
	testutil.AssertStatus(t, w, http.StatusOK)

	var summary geocode.Summary
	testutil.AssertData(t, w, &summary)

	if summary.CandidatesFound != 4 {
		t.Errorf("Expected 4 candidates, got %d", summary.CandidatesFound)
	}
	if summary.Processed != 0 {
		t.Errorf("Expected 0 processed, got %d", summary.Processed)
	}
	if summary.Failed != summary.CandidatesFound {
		t.Errorf("Expected failed == candidates_found, got %d vs %d", summary.Failed, summary.CandidatesFound)
	}
	for _, e := range summary.Errors {
		if e.Code != geocode.CodeRequestDenied {
			t.Errorf("Expected %s, got %s", geocode.CodeRequestDenied, e.Code)
		}
	}
	if calls.Load() != 4 {
		t.Errorf("Expected 4 API calls, got %d", calls.Load())
	}

	var stored int
	db.QueryRow(`SELECT COUNT(*) FROM restaurant_geo`).Scan(&stored)
	if stored != 0 {
		t.Errorf("Failed items must not be stored, found %d rows", stored)
	}
}

func TestGeoBatchFreshness(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	srv, calls := fakeGeocodeAPI(t, http.StatusOK, okGeocodeBody)
	handler := NewGeoHandler(db, geoConfig(srv.URL))

	adminID := testutil.CreateTestUser(t, db, "admin@example.com", "Admin")
	testutil.MakeAdmin(t, db, adminID)

	fresh := testutil.CreateTestRestaurant(t, db, "Fresh", "Stockholm", 4.0, "$")
	stale := testutil.CreateTestRestaurant(t, db, "Stale", "Stockholm", 4.0, "$")
	testutil.CreateTestRestaurant(t, db, "Never", "Stockholm", 4.0, "$")
	testutil.SetTestGeo(t, db, fresh, time.Now().Add(-24*time.Hour))
	testutil.SetTestGeo(t, db, stale, time.Now().Add(-90*24*time.Hour))

	tests := []struct {
		name              string
		body              interface{}
		expectedProcessed int
		expectedSkipped   int
	}{
		{"default max age skips fresh rows", nil, 2, 1},
		{"force refreshes everything", map[string]any{"force": true, "delayMs": 50}, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls.Store(0)
			w := runGeoBatch(t, handler, adminID, tt.body)
			testutil.AssertStatus(t, w, http.StatusOK)

			var summary geocode.Summary
			testutil.AssertData(t, w, &summary)
			if summary.Processed != tt.expectedProcessed || summary.Skipped != tt.expectedSkipped || summary.Failed != 0 {
				t.Errorf("Unexpected summary %+v", summary)
			}
			if int(calls.Load()) != tt.expectedProcessed {
				t.Errorf("Expected %d API calls, got %d", tt.expectedProcessed, calls.Load())
			}
		})
	}

	var stored int
	db.QueryRow(`SELECT COUNT(*) FROM restaurant_geo WHERE place_id = 'place-1'`).Scan(&stored)
	if stored != 3 {
		t.Errorf("Expected 3 geocoded rows, got %d", stored)
	}
}

func TestGeoBatchAccess(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	userID := testutil.CreateTestUser(t, db, "user@example.com", "User")
	adminID := testutil.CreateTestUser(t, db, "admin@example.com", "Admin")
	testutil.MakeAdmin(t, db, adminID)

	t.Run("non-admin", func(t *testing.T) {
		handler := NewGeoHandler(db, testutil.GetTestConfig())
		w := runGeoBatch(t, handler, userID, nil)
		testutil.AssertErrorCode(t, w, http.StatusForbidden, models.CodeForbidden)
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := testutil.GetTestConfig()
		cfg.GeocodeAPIKey = ""
		handler := NewGeoHandler(db, cfg)
		w := runGeoBatch(t, handler, adminID, nil)
		testutil.AssertErrorCode(t, w, http.StatusInternalServerError, models.CodeConfigMissing)
	})

	t.Run("malformed body", func(t *testing.T) {
		handler := NewGeoHandler(db, testutil.GetTestConfig())
		w := runGeoBatch(t, handler, adminID, map[string]string{"limit": "lots"})
		testutil.AssertErrorCode(t, w, http.StatusUnprocessableEntity, models.CodeValidation)
	})
}

func TestGeocodeOne(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	adminID := testutil.CreateTestUser(t, db, "admin@example.com", "Admin")
	testutil.MakeAdmin(t, db, adminID)
	restaurantID := testutil.CreateTestRestaurant(t, db, "Single", "Stockholm", 4.0, "$")
	id := fmt.Sprint(restaurantID)

	okSrv, _ := fakeGeocodeAPI(t, http.StatusOK, okGeocodeBody)
	zeroSrv, _ := fakeGeocodeAPI(t, http.StatusOK, `{"status":"ZERO_RESULTS","results":[]}`)

	tests := []struct {
		name           string
		baseURL        string
		id             string
		expectedStatus int
		expectedCode   string
	}{
		{"geocoded", okSrv.URL, id, http.StatusOK, ""},
		{"no results", zeroSrv.URL, id, http.StatusBadGateway, geocode.CodeZeroResults},
		{"unknown restaurant", okSrv.URL, "424242", http.StatusNotFound, models.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewGeoHandler(db, geoConfig(tt.baseURL))
			req := httptest.NewRequest("POST", "/api/restaurants/"+tt.id+"/geocode", nil)
			req.SetPathValue("id", tt.id)
			req = testutil.WithUser(req, adminID)
			w := httptest.NewRecorder()

			handler.GeocodeOne(w, req)

			if tt.expectedCode != "" {
				testutil.AssertErrorCode(t, w, tt.expectedStatus, tt.expectedCode)
				return
			}
			testutil.AssertStatus(t, w, tt.expectedStatus)

			var geo models.RestaurantGeo
			testutil.AssertData(t, w, &geo)
			if geo.PlaceID != "place-1" || geo.Accuracy != "ROOFTOP" || geo.Lat < 59 {
				t.Errorf("Unexpected geo %+v", geo)
			}
		})
	}
}
