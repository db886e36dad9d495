// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/danielhkuo/gastroswipe/consensus"
	"github.com/danielhkuo/gastroswipe/live"
	"github.com/danielhkuo/gastroswipe/middleware"
	"github.com/danielhkuo/gastroswipe/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	// DefaultCandidateLimit is used when prefs omit a limit
	DefaultCandidateLimit = 20
	// MaxSubmissions bounds how many submissions feed one consensus
	MaxSubmissions = 1000
)

type RoundHandler struct {
	db  *sql.DB
	hub *live.Hub
}

func NewRoundHandler(db *sql.DB, hub *live.Hub) *RoundHandler {
	return &RoundHandler{db: db, hub: hub}
}

const roundColumns = `id, group_id, started_by, status, prefs, forced, created_at, opened_at, closed_at`

func scanRound(row interface{ Scan(...any) error }) (models.Round, error) {
	var rd models.Round
	var prefs []byte
	var openedAt, closedAt sql.NullTime
	err := row.Scan(&rd.ID, &rd.GroupID, &rd.StartedBy, &rd.Status, &prefs, &rd.Forced, &rd.CreatedAt, &openedAt, &closedAt)
	if err != nil {
		return models.Round{}, err
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &rd.Prefs); err != nil {
			return models.Round{}, fmt.Errorf("decode prefs: %w", err)
		}
	}
	rd.OpenedAt = nullTime(openedAt)
	rd.ClosedAt = nullTime(closedAt)
	return rd, nil
}

// loadRound reads the {rid} round of a group. lock is "", "FOR SHARE" or "FOR UPDATE".
func loadRound(ctx context.Context, q queryer, groupID, roundID, lock string) (models.Round, error) {
	if !validUUID(roundID) {
		return models.Round{}, sql.ErrNoRows
	}
	return scanRound(q.QueryRowContext(ctx, `
		SELECT `+roundColumns+` FROM round WHERE id = $1 AND group_id = $2 `+lock,
		roundID, groupID))
}

// roundFromPath loads the round and writes 404/500 on failure
func roundFromPath(w http.ResponseWriter, r *http.Request, q queryer, groupID, lock string) (models.Round, bool) {
	rd, err := loadRound(r.Context(), q, groupID, r.PathValue("rid"), lock)
	if err == sql.ErrNoRows {
		middleware.ErrorWithCode(w, http.StatusNotFound, models.CodeNotFound, "Round not found")
		return models.Round{}, false
	}
	if err != nil {
		middleware.InternalError(w, "failed to query round", err)
		return models.Round{}, false
	}
	return rd, true
}

func decodePrefs(w http.ResponseWriter, r *http.Request) (models.RoundPrefs, bool) {
	var prefs models.RoundPrefs
	if err := middleware.ParseOptionalJSONBody(r, &prefs); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return prefs, false
	}
	if fields := middleware.Validate(&prefs); fields != nil {
		middleware.ValidationError(w, fields)
		return prefs, false
	}
	return prefs, true
}

func roundStateError(w http.ResponseWriter, rd models.Round, want string) {
	middleware.ErrorWithCode(w, http.StatusConflict, models.CodeRoundState,
		fmt.Sprintf("Round is %s, expected %s", rd.Status, want))
}

// CreateRound handles POST /api/groups/{id}/rounds
func (h *RoundHandler) CreateRound(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := requireElevated(w, r, h.db)
	if !ok {
		return
	}

	prefs, ok := decodePrefs(w, r)
	if !ok {
		return
	}
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		middleware.InternalError(w, "failed to encode prefs", err)
		return
	}

	userID := currentUser(r)

	tx, err := h.db.BeginTx(r.Context(), nil)
	if err != nil {
		middleware.InternalError(w, "failed to begin transaction", err)
		return
	}
	defer tx.Rollback()

	rd, err := scanRound(tx.QueryRowContext(r.Context(), `
		INSERT INTO round (id, group_id, started_by, status, prefs)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+roundColumns,
		uuid.NewString(), groupID, userID, models.StatusCreated, string(prefsJSON)))
	if isUniqueViolation(err) {
		middleware.ErrorWithCode(w, http.StatusConflict, models.CodeRoundActive, "The group already has an active round")
		return
	}
	if err != nil {
		middleware.InternalError(w, "failed to insert round", err)
		return
	}

	ev, err := recordEvent(r.Context(), tx, groupID, &rd.ID, userID, models.EventHostPrefs, map[string]any{
		"round_id": rd.ID,
		"prefs":    prefs,
	})
	if err != nil {
		middleware.InternalError(w, "failed to record prefs event", err)
		return
	}

	if err := tx.Commit(); err != nil {
		middleware.InternalError(w, "failed to commit round", err)
		return
	}

	publishEvent(h.hub, ev)
	slog.Info("round created", "group_id", groupID, "round_id", rd.ID)

	middleware.Data(w, http.StatusCreated, rd, nil)
}

// CurrentRound handles GET /api/groups/{id}/rounds/current
func (h *RoundHandler) CurrentRound(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := requireMember(w, r, h.db)
	if !ok {
		return
	}

	rd, err := scanRound(h.db.QueryRowContext(r.Context(), `
		SELECT `+roundColumns+` FROM round
		WHERE group_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, groupID))
	if err == sql.ErrNoRows {
		middleware.ErrorWithCode(w, http.StatusNotFound, models.CodeNotFound, "No rounds yet")
		return
	}
	if err != nil {
		middleware.InternalError(w, "failed to query round", err)
		return
	}

	middleware.Data(w, http.StatusOK, rd, nil)
}

// UpdatePrefs handles PUT /api/groups/{id}/rounds/{rid}/prefs
func (h *RoundHandler) UpdatePrefs(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := requireElevated(w, r, h.db)
	if !ok {
		return
	}

	prefs, ok := decodePrefs(w, r)
	if !ok {
		return
	}
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		middleware.InternalError(w, "failed to encode prefs", err)
		return
	}

	tx, err := h.db.BeginTx(r.Context(), nil)
	if err != nil {
		middleware.InternalError(w, "failed to begin transaction", err)
		return
	}
	defer tx.Rollback()

	rd, ok := roundFromPath(w, r, tx, groupID, "FOR UPDATE")
	if !ok {
		return
	}
	if rd.Status != models.StatusCreated {
		roundStateError(w, rd, models.StatusCreated)
		return
	}

	if _, err := tx.ExecContext(r.Context(), `UPDATE round SET prefs = $1 WHERE id = $2`, string(prefsJSON), rd.ID); err != nil {
		middleware.InternalError(w, "failed to update prefs", err)
		return
	}
	rd.Prefs = prefs

	ev, err := recordEvent(r.Context(), tx, groupID, &rd.ID, currentUser(r), models.EventHostPrefs, map[string]any{
		"round_id": rd.ID,
		"prefs":    prefs,
	})
	if err != nil {
		middleware.InternalError(w, "failed to record prefs event", err)
		return
	}

	if err := tx.Commit(); err != nil {
		middleware.InternalError(w, "failed to commit prefs", err)
		return
	}

	publishEvent(h.hub, ev)
	middleware.Data(w, http.StatusOK, rd, nil)
}

// selectCandidates picks active restaurants matching prefs, best rated first
func selectCandidates(ctx context.Context, q queryer, prefs models.RoundPrefs) ([]int64, error) {
	limit := prefs.Limit
	if limit == 0 {
		limit = DefaultCandidateLimit
	}
	cuisines := normalizeCuisines(prefs.Cuisines)

	rows, err := q.QueryContext(ctx, `
		SELECT id FROM restaurant
		WHERE is_active
			AND ($1 = '' OR parent_city ILIKE $1)
			AND (cardinality($2::text[]) = 0 OR cuisines && $2::text[])
			AND ($3 = 0 OR price_tag = '' OR char_length(price_tag) <= $3)
			AND avg_rating >= $4
		ORDER BY avg_rating DESC, review_count DESC, id ASC
		LIMIT $5
	`, prefs.City, pq.Array(cuisines), prefs.MaxPrice, prefs.MinRating, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// OpenRound handles POST /api/groups/{id}/rounds/{rid}/open
func (h *RoundHandler) OpenRound(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := requireElevated(w, r, h.db)
	if !ok {
		return
	}

	tx, err := h.db.BeginTx(r.Context(), nil)
	if err != nil {
		middleware.InternalError(w, "failed to begin transaction", err)
		return
	}
	defer tx.Rollback()

	rd, ok := roundFromPath(w, r, tx, groupID, "FOR UPDATE")
	if !ok {
		return
	}
	if rd.Status != models.StatusCreated {
		roundStateError(w, rd, models.StatusCreated)
		return
	}

	ids, err := selectCandidates(r.Context(), tx, rd.Prefs)
	if err != nil {
		middleware.InternalError(w, "failed to select candidates", err)
		return
	}
	if len(ids) == 0 {
		middleware.ErrorWithCode(w, http.StatusUnprocessableEntity, models.CodeNoCandidates, "No restaurants match these preferences")
		return
	}

	_, err = tx.ExecContext(r.Context(), `
		INSERT INTO round_candidate (round_id, restaurant_id, sort_order)
		SELECT $1, c.id, c.ord::int - 1
		FROM UNNEST($2::bigint[]) WITH ORDINALITY AS c(id, ord)
	`, rd.ID, pq.Array(ids))
	if err != nil {
		middleware.InternalError(w, "failed to insert candidates", err)
		return
	}

	now := time.Now()
	if _, err := tx.ExecContext(r.Context(), `
		UPDATE round SET status = $1, opened_at = $2 WHERE id = $3
	`, models.StatusOpen, now, rd.ID); err != nil {
		middleware.InternalError(w, "failed to open round", err)
		return
	}
	rd.Status = models.StatusOpen
	rd.OpenedAt = &now

	ev, err := recordEvent(r.Context(), tx, groupID, &rd.ID, currentUser(r), models.EventRoundStart, map[string]any{
		"round_id":      rd.ID,
		"candidate_ids": ids,
	})
	if err != nil {
		middleware.InternalError(w, "failed to record round start", err)
		return
	}

	if err := tx.Commit(); err != nil {
		middleware.InternalError(w, "failed to commit round open", err)
		return
	}

	publishEvent(h.hub, ev)
	slog.Info("round opened", "group_id", groupID, "round_id", rd.ID, "candidates", len(ids))

	middleware.Data(w, http.StatusOK, rd, map[string]int{"candidates": len(ids)})
}

// ListCandidates handles GET /api/groups/{id}/rounds/{rid}/candidates
func (h *RoundHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := requireMember(w, r, h.db)
	if !ok {
		return
	}

	rd, ok := roundFromPath(w, r, h.db, groupID, "")
	if !ok {
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT `+restaurantColumns+`
		FROM round_candidate c
		JOIN restaurant r ON r.id = c.restaurant_id
		WHERE c.round_id = $1
		ORDER BY c.sort_order
	`, rd.ID)
	if err != nil {
		middleware.InternalError(w, "failed to query candidates", err)
		return
	}
	defer rows.Close()

	restaurants := []models.Restaurant{}
	for rows.Next() {
		rest, err := scanRestaurant(rows)
		if err != nil {
			middleware.InternalError(w, "failed to scan candidate", err)
			return
		}
		restaurants = append(restaurants, rest)
	}
	if err := rows.Err(); err != nil {
		middleware.InternalError(w, "failed to iterate candidates", err)
		return
	}

	middleware.Items(w, restaurants, models.ResultsMeta{Status: rd.Status})
}

// dedupeIDs returns the distinct IDs in ascending order, never nil
func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := []int64{}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SubmitSwipes handles POST /api/groups/{id}/rounds/{rid}/swipes.
// A second submission by the same user replaces the first.
func (h *RoundHandler) SubmitSwipes(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := requireMember(w, r, h.db)
	if !ok {
		return
	}

	var req models.SubmitSwipesRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}
	accepted := dedupeIDs(req.AcceptedIDs)
	userID := currentUser(r)

	tx, err := h.db.BeginTx(r.Context(), nil)
	if err != nil {
		middleware.InternalError(w, "failed to begin transaction", err)
		return
	}
	defer tx.Rollback()

	// Shared lock serializes against close
	rd, ok := roundFromPath(w, r, tx, groupID, "FOR SHARE")
	if !ok {
		return
	}
	if rd.Status != models.StatusOpen {
		roundStateError(w, rd, models.StatusOpen)
		return
	}

	if len(accepted) > 0 {
		var known int
		err := tx.QueryRowContext(r.Context(), `
			SELECT COUNT(*) FROM round_candidate
			WHERE round_id = $1 AND restaurant_id = ANY($2::bigint[])
		`, rd.ID, pq.Array(accepted)).Scan(&known)
		if err != nil {
			middleware.InternalError(w, "failed to check candidates", err)
			return
		}
		if known != len(accepted) {
			middleware.ErrorWithCode(w, http.StatusUnprocessableEntity, models.CodeUnknownCandidate,
				"accepted_ids must be candidates of this round")
			return
		}
	}

	var inserted bool
	var submittedAt time.Time
	err = tx.QueryRowContext(r.Context(), `
		INSERT INTO round_submission (round_id, user_id, accepted_ids, submitted_at)
		VALUES ($1, $2, $3, clock_timestamp())
		ON CONFLICT (round_id, user_id) DO UPDATE SET
			accepted_ids = EXCLUDED.accepted_ids,
			submitted_at = EXCLUDED.submitted_at
		RETURNING (xmax = 0), submitted_at
	`, rd.ID, userID, pq.Array(accepted)).Scan(&inserted, &submittedAt)
	if err != nil {
		middleware.InternalError(w, "failed to upsert submission", err)
		return
	}

	ev, err := recordEvent(r.Context(), tx, groupID, &rd.ID, userID, models.EventSwipeResults, map[string]any{
		"round_id":       rd.ID,
		"user_id":        userID,
		"accepted_count": len(accepted),
	})
	if err != nil {
		middleware.InternalError(w, "failed to record swipe event", err)
		return
	}

	if err := tx.Commit(); err != nil {
		middleware.InternalError(w, "failed to commit swipes", err)
		return
	}

	publishEvent(h.hub, ev)
	slog.Info("swipes submitted", "round_id", rd.ID, "user_id", userID, "accepted", len(accepted), "replaced", !inserted)

	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	middleware.Data(w, status, models.SubmitSwipesResponse{
		RoundID:     rd.ID,
		AcceptedIDs: accepted,
		SubmittedAt: submittedAt,
		Replaced:    !inserted,
	}, nil)
}

// loadSubmissions returns the most recent submissions of a round, oldest first
func loadSubmissions(ctx context.Context, q queryer, roundID string) ([]consensus.Submission, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id, accepted_ids, submitted_at FROM (
			SELECT user_id, accepted_ids, submitted_at
			FROM round_submission
			WHERE round_id = $1
			ORDER BY submitted_at DESC
			LIMIT $2
		) recent
		ORDER BY submitted_at ASC
	`, roundID, MaxSubmissions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []consensus.Submission{}
	for rows.Next() {
		var s consensus.Submission
		if err := rows.Scan(&s.UserID, pq.Array(&s.AcceptedIDs), &s.SubmittedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func countMembers(ctx context.Context, q queryer, groupID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM group_member WHERE group_id = $1`, groupID).Scan(&n)
	return n, err
}

// Results handles GET /api/groups/{id}/rounds/{rid}/results
func (h *RoundHandler) Results(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := requireMember(w, r, h.db)
	if !ok {
		return
	}

	rd, ok := roundFromPath(w, r, h.db, groupID, "")
	if !ok {
		return
	}

	subs, err := loadSubmissions(r.Context(), h.db, rd.ID)
	if err != nil {
		middleware.InternalError(w, "failed to load submissions", err)
		return
	}

	members, err := countMembers(r.Context(), h.db, groupID)
	if err != nil {
		middleware.InternalError(w, "failed to count members", err)
		return
	}

	middleware.Data(w, http.StatusOK, consensus.Compute(subs), models.ResultsMeta{
		Members: members,
		Status:  rd.Status,
	})
}

// CloseRound handles POST /api/groups/{id}/rounds/{rid}/close
func (h *RoundHandler) CloseRound(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := requireElevated(w, r, h.db)
	if !ok {
		return
	}

	var req models.CloseRoundRequest
	if err := middleware.ParseOptionalJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	tx, err := h.db.BeginTx(r.Context(), nil)
	if err != nil {
		middleware.InternalError(w, "failed to begin transaction", err)
		return
	}
	defer tx.Rollback()

	rd, ok := roundFromPath(w, r, tx, groupID, "FOR UPDATE")
	if !ok {
		return
	}
	if rd.Status != models.StatusOpen {
		roundStateError(w, rd, models.StatusOpen)
		return
	}

	if !req.Force {
		var missing int
		err := tx.QueryRowContext(r.Context(), `
			SELECT COUNT(*) FROM group_member m
			WHERE m.group_id = $1
				AND NOT EXISTS (
					SELECT 1 FROM round_submission s
					WHERE s.round_id = $2 AND s.user_id = m.user_id
				)
		`, groupID, rd.ID).Scan(&missing)
		if err != nil {
			middleware.InternalError(w, "failed to count pending members", err)
			return
		}
		if missing > 0 {
			middleware.ErrorWithCode(w, http.StatusConflict, models.CodeRoundIncomplete,
				fmt.Sprintf("%d member(s) have not submitted; close with force to publish anyway", missing))
			return
		}
	}

	subs, err := loadSubmissions(r.Context(), tx, rd.ID)
	if err != nil {
		middleware.InternalError(w, "failed to load submissions", err)
		return
	}
	results := consensus.Compute(subs)

	now := time.Now()
	if _, err := tx.ExecContext(r.Context(), `
		UPDATE round SET status = $1, closed_at = $2, forced = $3 WHERE id = $4
	`, models.StatusClosed, now, req.Force, rd.ID); err != nil {
		middleware.InternalError(w, "failed to close round", err)
		return
	}
	rd.Status = models.StatusClosed
	rd.ClosedAt = &now
	rd.Forced = req.Force

	kind := models.EventPublishResults
	if req.Force {
		kind = models.EventForceResults
	}
	ev, err := recordEvent(r.Context(), tx, groupID, &rd.ID, currentUser(r), kind, map[string]any{
		"round_id": rd.ID,
		"results":  results,
	})
	if err != nil {
		middleware.InternalError(w, "failed to record results event", err)
		return
	}

	if err := tx.Commit(); err != nil {
		middleware.InternalError(w, "failed to commit round close", err)
		return
	}

	publishEvent(h.hub, ev)
	slog.Info("round closed", "group_id", groupID, "round_id", rd.ID, "forced", req.Force,
		"submitters", results.Submitters, "consensus", len(results.ConsensusIDs))

	middleware.Data(w, http.StatusOK, models.CloseRoundResponse{Round: rd, Results: results}, nil)
}
