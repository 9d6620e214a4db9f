package sim

import (
	"math"
)

// minEquilibrationSamples is the shortest suffix the partition test accepts.
const minEquilibrationSamples = 20

// EquilibrationResult is the verdict for one observation sequence.
type EquilibrationResult struct {
	IsEquilibrated bool `json:"is_equilibrated"`
	// NEquilSamples is the number of leading samples to exclude.
	NEquilSamples int `json:"N_equil_samples"`
}

// CheckEquilibration returns the smallest N for which the suffix data[N:]
// is stable: split into two partitions of equal size, their means agree
// within precision (van de Walle and Asta, MSMSE 10, 521 (2002)). When the
// suffix length is odd its middle sample belongs to neither partition.
//
// Sequences shorter than minEquilibrationSamples, sequences with zero
// variance and a non-positive precision are never equilibrated.
func CheckEquilibration(data []float64, precision float64) EquilibrationResult {
	n := len(data)
	if n < minEquilibrationSamples || !(precision > 0) || constant(data) {
		return EquilibrationResult{}
	}
	prefix := make([]float64, n+1)
	for i, v := range data {
		prefix[i+1] = prefix[i] + v
	}
	for start := 0; n-start >= minEquilibrationSamples; start++ {
		half := (n - start) / 2
		meanA := (prefix[start+half] - prefix[start]) / float64(half)
		meanB := (prefix[n] - prefix[n-half]) / float64(half)
		if math.Abs(meanA-meanB) < precision {
			return EquilibrationResult{IsEquilibrated: true, NEquilSamples: start}
		}
	}
	return EquilibrationResult{}
}

func constant(data []float64) bool {
	for _, v := range data[1:] {
		if v != data[0] {
			return false
		}
	}
	return true
}
