package lsh

import "math"

// Bandwidth picks the rows per band r for n hash values and a Jaccard
// threshold t by minimising |n - r/t^r| over r in [1, n]. Ties keep the
// smaller r. The scan stops once t^r underflows.
func Bandwidth(n int, t float64) int {
	best := n
	minErr := math.Inf(1)
	for r := 1; r <= n; r++ {
		b := 1 / math.Pow(t, float64(r))
		if math.IsInf(b, 0) {
			break
		}
		if err := math.Abs(float64(n) - b*float64(r)); err < minErr {
			minErr = err
			best = r
		}
	}
	return best
}

// CollisionProbability is the chance that two documents with Jaccard
// similarity s share at least one of bands buckets of rows rows each.
func CollisionProbability(s float64, rows, bands int) float64 {
	return 1 - math.Pow(1-math.Pow(s, float64(rows)), float64(bands))
}
