package bench

import "database/sql"

// WeightedMetric combines per-source values into one ensemble value.
// Sources without a value drop out of both numerator and denominator,
// so a missing forecast never drags the result toward zero. When no
// contributing source carries weight the plain mean is used.
func WeightedMetric(values map[string]sql.NullFloat64, weights map[string]float64) sql.NullFloat64 {
	var weightedSum, totalW, plainSum float64
	n := 0
	for src, v := range values {
		if !v.Valid {
			continue
		}
		w := weights[src]
		weightedSum += w * v.Float64
		totalW += w
		plainSum += v.Float64
		n++
	}
	if n == 0 {
		return sql.NullFloat64{}
	}
	if totalW <= 0 {
		return sql.NullFloat64{Float64: plainSum / float64(n), Valid: true}
	}
	return sql.NullFloat64{Float64: weightedSum / totalW, Valid: true}
}

// Spread is the max-min disagreement across sources, defined only when
// at least two sources contributed a value.
func Spread(values map[string]sql.NullFloat64) sql.NullFloat64 {
	var lo, hi float64
	n := 0
	for _, v := range values {
		if !v.Valid {
			continue
		}
		if n == 0 {
			lo, hi = v.Float64, v.Float64
		} else {
			if v.Float64 < lo {
				lo = v.Float64
			}
			if v.Float64 > hi {
				hi = v.Float64
			}
		}
		n++
	}
	if n < 2 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: hi - lo, Valid: true}
}
