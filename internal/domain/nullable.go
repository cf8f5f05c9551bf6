package domain

import (
	"math"

	"github.com/guregu/null/v6"
)

// Float converts a computed value to a nullable one. NaN and ±Inf become null.
func Float(v float64) null.Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return null.Float{}
	}
	return null.FloatFrom(v)
}

// Finite drops a value that is flagged valid but holds NaN or ±Inf.
func Finite(v null.Float) null.Float {
	if !v.Valid {
		return v
	}
	return Float(v.Float64)
}
