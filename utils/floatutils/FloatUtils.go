// Package floatutils provides utilities for working with floats
package floatutils

import (
	"math"
)

// AllFinite returns whether none of the argument floats are NaN or
// infinite
func AllFinite(floats ...float64) bool {
	for _, f := range floats {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Sigmoid returns the logistic function of x
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1.0 / (1.0 + math.Exp(-x))
	}
	// Avoid overflow of exp(-x) for large negative x
	e := math.Exp(x)
	return e / (1.0 + e)
}

// InRange returns whether all floats lie within [min, max]
func InRange(min, max float64, floats ...float64) bool {
	for _, f := range floats {
		if f < min || f > max {
			return false
		}
	}
	return true
}
