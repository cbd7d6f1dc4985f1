package sources

import (
	"database/sql"

	"github.com/felixlee/mountainbrief/internal/models"
)

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func maxOf(vals []float64) sql.NullFloat64 {
	if len(vals) == 0 {
		return sql.NullFloat64{}
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return nullFloat(m)
}

func minOf(vals []float64) sql.NullFloat64 {
	if len(vals) == 0 {
		return sql.NullFloat64{}
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return nullFloat(m)
}

// seriesMetrics folds sub-daily samples into the daily metrics: max and
// min of the temperature series and max of the wind series (km/h).
func seriesMetrics(tempsC, windsKmh []float64) models.Metrics {
	return models.Metrics{
		TempMax: maxOf(tempsC),
		TempMin: minOf(tempsC),
		WindMax: maxOf(windsKmh),
	}
}
