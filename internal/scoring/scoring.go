// Package scoring combines per-field scores into a single weighted total.
package scoring

import (
	"math"
	"slices"

	"github.com/spigell/resume-matcher/internal/fields"
)

// FieldScores maps a canonical field name to a score in [0, 100].
type FieldScores map[string]float64

// Weights maps a canonical field name to an unrestricted weight.
type Weights map[string]float64

// DefaultWeights is used when the caller does not configure weights.
func DefaultWeights() Weights {
	return Weights{
		"skills":         0.4,
		"experience":     0.3,
		"education":      0.2,
		"certifications": 0.1,
	}
}

// EqualWeights gives every field the same weight.
func EqualWeights(names []string) Weights {
	w := make(Weights, len(names))
	for _, name := range names {
		w[fields.Canonical(name)] = 1
	}
	return w
}

// Canonical returns a copy with every key canonicalized. Weights for keys
// that collapse together are summed.
func (w Weights) Canonical() Weights {
	out := make(Weights, len(w))
	for name, weight := range w {
		out[fields.Canonical(name)] += weight
	}
	return out
}

// Covers reports whether at least one of names carries a weight.
func (w Weights) Covers(names []string) bool {
	for _, name := range names {
		if _, ok := w[fields.Canonical(name)]; ok {
			return true
		}
	}
	return false
}

// Common returns the sorted field names present in both maps.
func Common(scores FieldScores, weights Weights) []string {
	common := make([]string, 0, min(len(scores), len(weights)))
	for name := range scores {
		if _, ok := weights[name]; ok {
			common = append(common, name)
		}
	}
	slices.Sort(common)
	return common
}

// ComputeTotal returns the weighted average of the scores over the fields
// present in both maps, rounded to 2 decimals. Fields missing from either
// side are ignored. An empty intersection or a zero weight sum yields 0.
func ComputeTotal(scores FieldScores, weights Weights) float64 {
	common := Common(scores, weights)
	if len(common) == 0 {
		return 0
	}

	var weightSum, weighted float64
	for _, name := range common {
		weightSum += weights[name]
		weighted += scores[name] * weights[name]
	}

	if weightSum == 0 {
		return 0
	}

	return Round2(weighted / weightSum)
}

// Round2 rounds half away from zero to 2 decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
