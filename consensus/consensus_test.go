// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package consensus

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC)

func TestComputeScenario(t *testing.T) {
	// Three members, two submit
	subs := []Submission{
		{UserID: "alice", AcceptedIDs: []int64{1, 2}, SubmittedAt: t0},
		{UserID: "bob", AcceptedIDs: []int64{2, 3}, SubmittedAt: t0.Add(time.Second)},
	}

	res := Compute(subs)

	if res.Submitters != 2 {
		t.Errorf("Submitters = %d, want 2", res.Submitters)
	}
	wantCounts := map[int64]int{1: 1, 2: 2, 3: 1}
	if !reflect.DeepEqual(res.Counts, wantCounts) {
		t.Errorf("Counts = %v, want %v", res.Counts, wantCounts)
	}
	wantPct := map[int64]float64{1: 0.5, 2: 1.0, 3: 0.5}
	if !reflect.DeepEqual(res.Percentages, wantPct) {
		t.Errorf("Percentages = %v, want %v", res.Percentages, wantPct)
	}
	if !reflect.DeepEqual(res.ConsensusIDs, []int64{2}) {
		t.Errorf("ConsensusIDs = %v, want [2]", res.ConsensusIDs)
	}
	if !reflect.DeepEqual(res.RankedIDs, []int64{2, 1, 3}) {
		t.Errorf("RankedIDs = %v, want [2 1 3]", res.RankedIDs)
	}
}

func TestComputeNoSubmitters(t *testing.T) {
	res := Compute(nil)

	if res.Submitters != 0 {
		t.Errorf("Submitters = %d, want 0", res.Submitters)
	}
	if len(res.Counts) != 0 || len(res.Percentages) != 0 {
		t.Errorf("expected empty maps, got %v / %v", res.Counts, res.Percentages)
	}
	if res.ConsensusIDs == nil || len(res.ConsensusIDs) != 0 {
		t.Errorf("ConsensusIDs = %#v, want empty non-nil slice", res.ConsensusIDs)
	}

	// Must encode as [] and {} rather than null
	body, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"submitters":0,"counts":{},"percentages":{},"consensus_ids":[]}`
	if string(body) != want {
		t.Errorf("JSON = %s, want %s", body, want)
	}
}

func TestComputeResubmissionDoesNotDoubleCount(t *testing.T) {
	same := []int64{4, 5}
	subs := []Submission{
		{UserID: "alice", AcceptedIDs: same, SubmittedAt: t0},
		{UserID: "alice", AcceptedIDs: same, SubmittedAt: t0},
		{UserID: "alice", AcceptedIDs: same, SubmittedAt: t0.Add(time.Minute)},
	}

	res := Compute(subs)

	if res.Submitters != 1 {
		t.Errorf("Submitters = %d, want 1", res.Submitters)
	}
	if res.Counts[4] != 1 || res.Counts[5] != 1 {
		t.Errorf("Counts = %v, want each id once", res.Counts)
	}
	if !reflect.DeepEqual(res.ConsensusIDs, []int64{4, 5}) {
		t.Errorf("ConsensusIDs = %v, want [4 5]", res.ConsensusIDs)
	}
}

func TestComputeLastWriteWins(t *testing.T) {
	tests := []struct {
		name string
		subs []Submission
		want []int64
	}{
		{
			name: "newer timestamp wins",
			subs: []Submission{
				{UserID: "alice", AcceptedIDs: []int64{9}, SubmittedAt: t0.Add(time.Minute)},
				{UserID: "alice", AcceptedIDs: []int64{1}, SubmittedAt: t0},
			},
			want: []int64{9},
		},
		{
			name: "equal timestamps keep the later entry",
			subs: []Submission{
				{UserID: "alice", AcceptedIDs: []int64{1}, SubmittedAt: t0},
				{UserID: "alice", AcceptedIDs: []int64{2}, SubmittedAt: t0},
			},
			want: []int64{2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Compute(tt.subs)
			if !reflect.DeepEqual(res.ConsensusIDs, tt.want) {
				t.Errorf("ConsensusIDs = %v, want %v", res.ConsensusIDs, tt.want)
			}
		})
	}
}

func TestComputeIsIntersection(t *testing.T) {
	tests := []struct {
		name string
		sets [][]int64
		want []int64
	}{
		{"single submitter", [][]int64{{3, 1, 2}}, []int64{1, 2, 3}},
		{"disjoint", [][]int64{{1}, {2}}, []int64{}},
		{"full overlap", [][]int64{{7, 8}, {8, 7}, {7, 8, 9}}, []int64{7, 8}},
		{"empty acceptance", [][]int64{{1, 2}, {}}, []int64{}},
		{"duplicate ids in one set", [][]int64{{1, 1, 2}, {1}}, []int64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var subs []Submission
			for i, set := range tt.sets {
				subs = append(subs, Submission{
					UserID:      string(rune('a' + i)),
					AcceptedIDs: set,
					SubmittedAt: t0,
				})
			}

			res := Compute(subs)

			if res.Submitters != len(tt.sets) {
				t.Errorf("Submitters = %d, want %d", res.Submitters, len(tt.sets))
			}
			if !reflect.DeepEqual(res.ConsensusIDs, tt.want) {
				t.Errorf("ConsensusIDs = %v, want %v", res.ConsensusIDs, tt.want)
			}
			for id, pct := range res.Percentages {
				if pct <= 0 || pct > 1 {
					t.Errorf("percentage for %d out of range: %f", id, pct)
				}
			}
		})
	}
}

func TestLatestOrdering(t *testing.T) {
	subs := []Submission{
		{UserID: "zoe", SubmittedAt: t0},
		{UserID: "adam", SubmittedAt: t0},
		{UserID: "zoe", SubmittedAt: t0.Add(time.Second)},
	}

	latest := Latest(subs)

	if len(latest) != 2 {
		t.Fatalf("len(Latest) = %d, want 2", len(latest))
	}
	if latest[0].UserID != "adam" || latest[1].UserID != "zoe" {
		t.Errorf("unexpected order: %v, %v", latest[0].UserID, latest[1].UserID)
	}
	if !latest[1].SubmittedAt.Equal(t0.Add(time.Second)) {
		t.Error("Latest kept the older submission for zoe")
	}
}

func TestRanked(t *testing.T) {
	res := Compute([]Submission{
		{UserID: "a", AcceptedIDs: []int64{5, 3, 1}, SubmittedAt: t0},
		{UserID: "b", AcceptedIDs: []int64{3, 1}, SubmittedAt: t0},
		{UserID: "c", AcceptedIDs: []int64{3}, SubmittedAt: t0},
	})

	want := []int64{3, 1, 5}
	if got := res.Ranked(); !reflect.DeepEqual(got, want) {
		t.Errorf("Ranked() = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(res.RankedIDs, want) {
		t.Errorf("RankedIDs = %v, want %v", res.RankedIDs, want)
	}

	empty := Compute(nil)
	if got := empty.Ranked(); len(got) != 0 {
		t.Errorf("Ranked() on empty result = %v", got)
	}
	if empty.RankedIDs == nil || len(empty.RankedIDs) != 0 {
		t.Errorf("RankedIDs on empty result = %#v, want empty slice", empty.RankedIDs)
	}
}
