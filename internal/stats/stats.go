package stats

import (
	"math"
	"sort"
)

// Median returns the median value of the slice (allocates a copy).
// An even count averages the two middle values. ok is false for an empty slice.
func Median(x []float64) (median float64, ok bool) {
	n := len(x)
	if n == 0 {
		return 0, false
	}
	cp := make([]float64, n)
	copy(cp, x)
	sort.Float64s(cp)
	mid := n >> 1
	if n&1 == 0 {
		return (cp[mid-1] + cp[mid]) * 0.5, true
	}
	return cp[mid], true
}

// Observed drops NaN entries.
func Observed(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
