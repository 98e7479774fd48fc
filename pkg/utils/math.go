package utils

import "math"

// Sigmoid maps a raw score to (0,1).
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// LogOdds returns log(p/(1-p)), clamping p away from 0 and 1 so the result
// stays finite. Positive iff p > 0.5.
func LogOdds(p float64) float64 {
	const eps = 1e-9
	if p < eps {
		p = eps
	}
	if p > 1-eps {
		p = 1 - eps
	}
	return math.Log(p / (1 - p))
}
