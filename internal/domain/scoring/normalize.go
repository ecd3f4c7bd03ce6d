// Package scoring turns raw predictor output into bounded display scores and
// defines the predictor contract.
package scoring

import (
	"fmt"
	"math"
)

const maxScore = 100

var (
	// Largest and smallest float64 strictly inside (0, 100).
	upperBound = math.Nextafter(maxScore, 0)
	lowerBound = math.SmallestNonzeroFloat64
)

// Normalize maps a raw score onto (0, 100) with 100 / (1 + e^-x).
//
// Finite inputs never reach the bounds: where float64 would round to exactly
// 0 or 100 the nearest interior value is returned. NaN and ±Inf follow IEEE
// arithmetic; use NormalizeChecked to reject them.
func Normalize(x float64) float64 {
	v := maxScore / (1 + math.Exp(-x))
	switch {
	case math.IsInf(x, 0) || math.IsNaN(x):
		return v
	case v >= maxScore:
		return upperBound
	case v <= 0:
		return lowerBound
	}
	return v
}

// NormalizeChecked is Normalize for untrusted input. It fails with
// ErrNonFiniteScore on NaN or ±Inf.
func NormalizeChecked(x float64) (float64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNonFiniteScore, x)
	}
	return Normalize(x), nil
}
