// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package consensus tallies swipe submissions for a round and finds the
// restaurants every participant accepted.
package consensus

import (
	"sort"
	"time"
)

// Submission is one user's accepted restaurants for a round
type Submission struct {
	UserID      string
	AcceptedIDs []int64
	SubmittedAt time.Time
}

// Result is the aggregate over the latest submission of each user
type Result struct {
	Submitters   int               `json:"submitters"`
	Counts       map[int64]int     `json:"counts"`
	Percentages  map[int64]float64 `json:"percentages"`
	ConsensusIDs []int64           `json:"consensus_ids"`
	RankedIDs    []int64           `json:"ranked_ids"`
}

// Latest keeps one submission per user: the one with the newest SubmittedAt,
// and on equal timestamps the one that appears later in subs.
// Output is ordered by user ID.
func Latest(subs []Submission) []Submission {
	byUser := make(map[string]Submission, len(subs))
	for _, s := range subs {
		prev, seen := byUser[s.UserID]
		if !seen || !s.SubmittedAt.Before(prev.SubmittedAt) {
			byUser[s.UserID] = s
		}
	}

	out := make([]Submission, 0, len(byUser))
	for _, s := range byUser {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Compute aggregates submissions. Repeated IDs within one submission count once.
// With no submitters the maps are empty and ConsensusIDs is an empty slice.
func Compute(subs []Submission) Result {
	latest := Latest(subs)

	res := Result{
		Submitters:   len(latest),
		Counts:       make(map[int64]int),
		Percentages:  make(map[int64]float64),
		ConsensusIDs: []int64{},
		RankedIDs:    []int64{},
	}
	if res.Submitters == 0 {
		return res
	}

	for _, s := range latest {
		seen := make(map[int64]bool, len(s.AcceptedIDs))
		for _, id := range s.AcceptedIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			res.Counts[id]++
		}
	}

	for id, count := range res.Counts {
		res.Percentages[id] = float64(count) / float64(res.Submitters)
		if count == res.Submitters {
			res.ConsensusIDs = append(res.ConsensusIDs, id)
		}
	}
	sort.Slice(res.ConsensusIDs, func(i, j int) bool { return res.ConsensusIDs[i] < res.ConsensusIDs[j] })
	res.RankedIDs = res.Ranked()

	return res
}

// Ranked returns restaurant IDs ordered by acceptance count (descending),
// ties broken by ascending ID.
func (r Result) Ranked() []int64 {
	ids := make([]int64, 0, len(r.Counts))
	for id := range r.Counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if r.Counts[a] != r.Counts[b] {
			return r.Counts[a] > r.Counts[b]
		}
		return a < b
	})
	return ids
}
