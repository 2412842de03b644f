package dispatch

import (
	"math"
	"sort"

	"helper-dispatch/pkg/types"
)

// DefaultTieThresholdKm is the distance similarity below which rating, not
// distance, decides ordering.
const DefaultTieThresholdKm = 0.1

// Rank orders candidates ascending by distance to the target; when two
// candidates' distances differ by strictly less than the threshold the
// higher rating wins instead. A single comparator fed to a stable sort, so
// true ties keep their input order.
func Rank(candidates []types.Candidate, tieThresholdKm float64) []types.Candidate {
	ranked := append([]types.Candidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if math.Abs(a.Distance-b.Distance) < tieThresholdKm {
			return a.Helper.Rating > b.Helper.Rating
		}
		return a.Distance < b.Distance
	})
	return ranked
}
