package pipeline

import "sort"

// Quantile returns the q-th quantile of vals using linear interpolation
// between closest ranks, the same definition as percentile_cont in SQL, so
// in-memory gauges and database reports agree. The input is not modified.
func Quantile(vals []float64, q float64) float64 {
	if len(vals) == 0 {
		return 0
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	idx := q * float64(len(sorted)-1)
	i := int(idx)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(i)
	return sorted[i]*(1-frac) + sorted[i+1]*frac
}
