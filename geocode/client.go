// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Error codes reported per item and by the single-restaurant route
const (
	CodeConnection         = "GEOCODE_API_CONNECTION_ERROR"
	CodeHTTPStatus         = "GEOCODE_HTTP_ERROR"
	CodeParse              = "GEOCODE_PARSE_ERROR"
	CodeZeroResults        = "GEOCODE_ZERO_RESULTS"
	CodeQuotaExceeded      = "GEOCODE_QUOTA_EXCEEDED"
	CodeRequestDenied      = "GEOCODE_REQUEST_DENIED"
	CodeInvalidRequest     = "GEOCODE_INVALID_REQUEST"
	CodeUnknown            = "GEOCODE_UNKNOWN_ERROR"
	CodeMissingCoordinates = "GEOCODE_MISSING_COORDINATES"
	CodeUpsertFailed       = "GEO_UPSERT_FAILED"
)

// Error is a geocoding failure tagged with a stable code
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code string, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// Result is the first match returned by the geocoding API
type Result struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	PlaceID          string  `json:"place_id"`
	FormattedAddress string  `json:"formatted_address"`
	Accuracy         string  `json:"accuracy"`
}

// Client calls a Google-compatible geocoding endpoint
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewClient returns a client with a bounded request timeout
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type apiResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		PlaceID          string `json:"place_id"`
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location *struct {
				Lat *float64 `json:"lat"`
				Lng *float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves an address to coordinates using the first API result.
// Every failure is an *Error.
func (c *Client) Geocode(ctx context.Context, address string) (Result, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", c.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Result{}, newError(CodeConnection, "build request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Result{}, newError(CodeConnection, "request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, newError(CodeHTTPStatus, "unexpected status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, newError(CodeParse, "decode response: %w", err)
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return Result{}, newError(CodeZeroResults, "no results for %q", address)
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return Result{}, newError(CodeQuotaExceeded, "%s: %s", body.Status, body.ErrorMessage)
	case "REQUEST_DENIED":
		return Result{}, newError(CodeRequestDenied, "%s", body.ErrorMessage)
	case "INVALID_REQUEST":
		return Result{}, newError(CodeInvalidRequest, "%s", body.ErrorMessage)
	default:
		return Result{}, newError(CodeUnknown, "status %q: %s", body.Status, body.ErrorMessage)
	}

	if len(body.Results) == 0 {
		return Result{}, newError(CodeZeroResults, "no results for %q", address)
	}

	first := body.Results[0]
	loc := first.Geometry.Location
	if loc == nil || loc.Lat == nil || loc.Lng == nil {
		return Result{}, newError(CodeMissingCoordinates, "result for %q has no location", address)
	}

	return Result{
		Lat:              *loc.Lat,
		Lng:              *loc.Lng,
		PlaceID:          first.PlaceID,
		FormattedAddress: first.FormattedAddress,
		Accuracy:         first.Geometry.LocationType,
	}, nil
}

// Address builds the query string sent to the API for a restaurant
func Address(name, street, city string) string {
	s := name
	if street != "" {
		s += ", " + street
	}
	if city != "" {
		s += ", " + city
	}
	return s
}
