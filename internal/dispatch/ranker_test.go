package dispatch

import (
	"testing"

	"helper-dispatch/pkg/types"
	"github.com/google/uuid"
)

func candidate(name string, distance, rating float64) types.Candidate {
	return types.Candidate{
		Helper: types.Helper{
			ID:     uuid.New(),
			Name:   name,
			Rating: rating,
		},
		Distance: distance,
	}
}

func names(ranked []types.Candidate) []string {
	out := make([]string, len(ranked))
	for i, c := range ranked {
		out[i] = c.Helper.Name
	}
	return out
}

func assertOrder(t *testing.T, ranked []types.Candidate, want ...string) {
	t.Helper()
	got := names(ranked)
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestRankNearestFirst(t *testing.T) {
	ranked := Rank([]types.Candidate{
		candidate("far", 5.0, 5.0),
		candidate("near", 1.0, 3.0),
		candidate("mid", 3.0, 4.0),
	}, DefaultTieThresholdKm)

	assertOrder(t, ranked, "near", "mid", "far")
}

func TestRankTieBrokenByRating(t *testing.T) {
	// 2.00 vs 2.05 km differ by less than the threshold, so the higher
	// rated candidate wins despite being marginally farther
	ranked := Rank([]types.Candidate{
		candidate("a", 2.00, 3.5),
		candidate("b", 2.05, 4.8),
	}, DefaultTieThresholdKm)

	assertOrder(t, ranked, "b", "a")
}

func TestRankThresholdIsStrict(t *testing.T) {
	// a difference of exactly the threshold is not a tie
	ranked := Rank([]types.Candidate{
		candidate("far-but-great", 0.4, 5.0),
		candidate("near-but-poor", 0.3, 1.0),
	}, DefaultTieThresholdKm)

	assertOrder(t, ranked, "near-but-poor", "far-but-great")
}

func TestRankEqualKeepsInputOrder(t *testing.T) {
	ranked := Rank([]types.Candidate{
		candidate("first", 2.0, 4.0),
		candidate("second", 2.0, 4.0),
	}, DefaultTieThresholdKm)

	assertOrder(t, ranked, "first", "second")
}

func TestRankDoesNotMutateInput(t *testing.T) {
	input := []types.Candidate{
		candidate("far", 9.0, 4.0),
		candidate("near", 1.0, 4.0),
	}

	Rank(input, DefaultTieThresholdKm)

	if input[0].Helper.Name != "far" || input[1].Helper.Name != "near" {
		t.Errorf("input slice was reordered: %v", names(input))
	}
}
