// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danielhkuo/gastroswipe/metrics"
)

// Batch option bounds. Out-of-range values are clamped.
const (
	MinLimit       = 1
	MaxLimit       = 1000
	DefaultLimit   = 100
	MinConcurrency = 1
	MaxConcurrency = 10
	DefaultConc    = 3
	MinDelayMs     = 50
	MaxDelayMs     = 5000
	DefaultDelayMs = 200
	DefaultMaxAge  = 30
)

// BatchRequest is the raw request body; nil fields take defaults
type BatchRequest struct {
	Limit       *int  `json:"limit"`
	MaxAgeDays  *int  `json:"maxAgeDays"`
	Concurrency *int  `json:"concurrency"`
	Force       *bool `json:"force"`
	DelayMs     *int  `json:"delayMs"`
}

// Options are the clamped batch settings
type Options struct {
	Limit       int  `json:"limit"`
	MaxAgeDays  int  `json:"max_age_days"`
	Concurrency int  `json:"concurrency"`
	Force       bool `json:"force"`
	DelayMs     int  `json:"delay_ms"`
}

// Candidate is a restaurant that may need coordinates
type Candidate struct {
	ID           int64
	Name         string
	Address      string
	City         string
	GeoUpdatedAt *time.Time
}

// ItemError records why one candidate failed
type ItemError struct {
	RestaurantID int64  `json:"restaurant_id"`
	Name         string `json:"name"`
	Code         string `json:"code"`
	Message      string `json:"message"`
}

// Summary is the outcome of one batch run
type Summary struct {
	CandidatesFound int         `json:"candidates_found"`
	Processed       int         `json:"processed"`
	Skipped         int         `json:"skipped"`
	Failed          int         `json:"failed"`
	Errors          []ItemError `json:"errors"`
}

// Store loads candidates and persists results
type Store interface {
	Candidates(ctx context.Context, limit int) ([]Candidate, error)
	UpsertGeo(ctx context.Context, restaurantID int64, r Result) error
}

// Geocoder resolves an address
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Result, error)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampOptions applies defaults and bounds; it never rejects a value
func ClampOptions(req BatchRequest) Options {
	opts := Options{
		Limit:       DefaultLimit,
		MaxAgeDays:  DefaultMaxAge,
		Concurrency: DefaultConc,
		DelayMs:     DefaultDelayMs,
	}
	if req.Limit != nil {
		opts.Limit = *req.Limit
	}
	if req.MaxAgeDays != nil {
		opts.MaxAgeDays = *req.MaxAgeDays
	}
	if req.Concurrency != nil {
		opts.Concurrency = *req.Concurrency
	}
	if req.DelayMs != nil {
		opts.DelayMs = *req.DelayMs
	}
	if req.Force != nil {
		opts.Force = *req.Force
	}

	opts.Limit = clamp(opts.Limit, MinLimit, MaxLimit)
	opts.Concurrency = clamp(opts.Concurrency, MinConcurrency, MaxConcurrency)
	opts.DelayMs = clamp(opts.DelayMs, MinDelayMs, MaxDelayMs)
	if opts.MaxAgeDays < 0 {
		opts.MaxAgeDays = 0
	}
	return opts
}

// IsFresh reports whether coordinates updated at updatedAt are younger than maxAgeDays
func IsFresh(updatedAt *time.Time, maxAgeDays int, now time.Time) bool {
	if updatedAt == nil {
		return false
	}
	return now.Sub(*updatedAt) < time.Duration(maxAgeDays)*24*time.Hour
}

// Runner executes batches. Sleep and Now are replaceable for tests.
type Runner struct {
	Store    Store
	Geocoder Geocoder
	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration)
}

// NewRunner returns a Runner using the wall clock
func NewRunner(store Store, geocoder Geocoder) *Runner {
	return &Runner{
		Store:    store,
		Geocoder: geocoder,
		Now:      time.Now,
		Sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

type outcome struct {
	skipped bool
	err     *ItemError
}

// Run geocodes up to opts.Limit candidates with opts.Concurrency workers.
// Only a failure to load candidates is returned as an error; per-item
// failures are collected in the summary.
func (r *Runner) Run(ctx context.Context, opts Options) (Summary, error) {
	start := time.Now()
	defer func() {
		metrics.GeocodeBatchDuration.Observe(time.Since(start).Seconds())
	}()

	candidates, err := r.Store.Candidates(ctx, opts.Limit)
	if err != nil {
		return Summary{}, fmt.Errorf("load candidates: %w", err)
	}

	summary := Summary{
		CandidatesFound: len(candidates),
		Errors:          []ItemError{},
	}

	jobs := make(chan Candidate)
	results := make(chan outcome)
	now := r.Now()
	delay := time.Duration(opts.DelayMs) * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				results <- r.process(ctx, c, opts, now, delay)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, c := range candidates {
			select {
			case jobs <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	handled := 0
	for o := range results {
		handled++
		switch {
		case o.skipped:
			summary.Skipped++
			metrics.GeocodeItems.WithLabelValues("skipped").Inc()
		case o.err != nil:
			summary.Failed++
			summary.Errors = append(summary.Errors, *o.err)
			metrics.GeocodeItems.WithLabelValues(o.err.Code).Inc()
		default:
			summary.Processed++
			metrics.GeocodeItems.WithLabelValues("processed").Inc()
		}
	}

	// Items never dispatched because the request was cancelled
	for _, c := range candidates[handled:] {
		summary.Failed++
		summary.Errors = append(summary.Errors, ItemError{
			RestaurantID: c.ID,
			Name:         c.Name,
			Code:         "GEOCODE_CANCELLED",
			Message:      "batch cancelled before item was processed",
		})
	}

	slog.Info("geocode batch finished",
		"candidates", summary.CandidatesFound,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)

	return summary, nil
}

func (r *Runner) process(ctx context.Context, c Candidate, opts Options, now time.Time, delay time.Duration) outcome {
	if !opts.Force && IsFresh(c.GeoUpdatedAt, opts.MaxAgeDays, now) {
		return outcome{skipped: true}
	}

	defer r.Sleep(ctx, delay)

	res, err := r.Geocoder.Geocode(ctx, Address(c.Name, c.Address, c.City))
	if err != nil {
		return outcome{err: itemError(c, err)}
	}

	if err := r.Store.UpsertGeo(ctx, c.ID, res); err != nil {
		return outcome{err: itemError(c, &Error{Code: CodeUpsertFailed, Err: err})}
	}
	return outcome{}
}

func itemError(c Candidate, err error) *ItemError {
	code := CodeUnknown
	var gerr *Error
	if errors.As(err, &gerr) {
		code = gerr.Code
	}
	slog.Warn("geocode item failed", "restaurant_id", c.ID, "code", code, "error", err)
	return &ItemError{
		RestaurantID: c.ID,
		Name:         c.Name,
		Code:         code,
		Message:      err.Error(),
	}
}
