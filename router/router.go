// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/gastroswipe/cliparse"
	"github.com/danielhkuo/gastroswipe/handlers"
	"github.com/danielhkuo/gastroswipe/live"
	"github.com/danielhkuo/gastroswipe/metrics"
	"github.com/danielhkuo/gastroswipe/middleware"
)

// NewRouter registers every API route. hub may be nil, which disables live broadcast.
func NewRouter(db *sql.DB, cfg cliparse.Config, hub *live.Hub) http.Handler {
	mux := http.NewServeMux()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(db, cfg)
	groupHandler := handlers.NewGroupHandler(db, cfg, hub)
	messageHandler := handlers.NewMessageHandler(db, hub)
	roundHandler := handlers.NewRoundHandler(db, hub)
	restaurantHandler := handlers.NewRestaurantHandler(db)
	geoHandler := handlers.NewGeoHandler(db, cfg)

	requireUser := middleware.RequireUser(cfg.SessionSecret)
	public := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(h)
	}
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(requireUser(h))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", metrics.Handler())

	// Auth
	mux.HandleFunc("POST /api/auth/signup", public(authHandler.SignUp))
	mux.HandleFunc("POST /api/auth/signin", public(authHandler.SignIn))
	mux.HandleFunc("POST /api/auth/signout", public(authHandler.SignOut))
	mux.HandleFunc("GET /api/auth/session", authed(authHandler.Session))
	mux.HandleFunc("GET /api/me/avatar", authed(authHandler.GetAvatar))
	mux.HandleFunc("PUT /api/me/avatar", authed(authHandler.PutAvatar))

	// Groups and invites
	mux.HandleFunc("POST /api/groups", authed(groupHandler.CreateGroup))
	mux.HandleFunc("GET /api/groups", authed(groupHandler.ListGroups))
	mux.HandleFunc("GET /api/groups/{id}", authed(groupHandler.GetGroup))
	mux.HandleFunc("POST /api/groups/{id}/invites", authed(groupHandler.CreateInvite))
	mux.HandleFunc("POST /api/invites/redeem", authed(groupHandler.RedeemInvite))
	mux.HandleFunc("DELETE /api/groups/{id}/members/me", authed(groupHandler.LeaveGroup))
	mux.HandleFunc("PUT /api/groups/{id}/members/{uid}/role", authed(groupHandler.SetMemberRole))

	// Chat, events and the live feed
	mux.HandleFunc("GET /api/groups/{id}/messages", authed(messageHandler.ListMessages))
	mux.HandleFunc("POST /api/groups/{id}/messages", authed(messageHandler.PostMessage))
	mux.HandleFunc("GET /api/groups/{id}/events", authed(messageHandler.ListEvents))
	mux.HandleFunc("GET /api/groups/{id}/live", authed(messageHandler.Live))

	// Rounds
	mux.HandleFunc("POST /api/groups/{id}/rounds", authed(roundHandler.CreateRound))
	mux.HandleFunc("GET /api/groups/{id}/rounds/current", authed(roundHandler.CurrentRound))
	mux.HandleFunc("PUT /api/groups/{id}/rounds/{rid}/prefs", authed(roundHandler.UpdatePrefs))
	mux.HandleFunc("POST /api/groups/{id}/rounds/{rid}/open", authed(roundHandler.OpenRound))
	mux.HandleFunc("GET /api/groups/{id}/rounds/{rid}/candidates", authed(roundHandler.ListCandidates))
	mux.HandleFunc("POST /api/groups/{id}/rounds/{rid}/swipes", authed(roundHandler.SubmitSwipes))
	mux.HandleFunc("GET /api/groups/{id}/rounds/{rid}/results", authed(roundHandler.Results))
	mux.HandleFunc("POST /api/groups/{id}/rounds/{rid}/close", authed(roundHandler.CloseRound))

	// Restaurant catalogue (writes are admin-only)
	mux.HandleFunc("GET /api/restaurants", authed(restaurantHandler.ListRestaurants))
	mux.HandleFunc("GET /api/restaurants/{id}", authed(restaurantHandler.GetRestaurant))
	mux.HandleFunc("POST /api/restaurants", authed(restaurantHandler.CreateRestaurant))
	mux.HandleFunc("PATCH /api/restaurants/{id}", authed(restaurantHandler.UpdateRestaurant))
	mux.HandleFunc("DELETE /api/restaurants/{id}", authed(restaurantHandler.DeleteRestaurant))
	mux.HandleFunc("GET /api/cuisines", authed(restaurantHandler.ListCuisines))
	mux.HandleFunc("GET /api/cities", authed(restaurantHandler.ListCities))

	// Geocoding (admin)
	mux.HandleFunc("POST /api/restaurants/geo-batch", authed(geoHandler.GeoBatch))
	mux.HandleFunc("POST /api/restaurants/{id}/geocode", authed(geoHandler.GeocodeOne))

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("gastroswipe API v1"))
	})

	return middleware.CORS(cfg.CORSOrigins)(mux)
}
