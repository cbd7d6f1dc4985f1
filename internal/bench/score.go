// Package bench grades each forecast source against observed actuals
// and turns the accumulated history into ensemble weights.
package bench

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/felixlee/mountainbrief/internal/metrics"
	"github.com/felixlee/mountainbrief/internal/models"
	"github.com/felixlee/mountainbrief/internal/store"
)

// LookbackDays is the rolling window over scored days.
const LookbackDays = 14

// Composite error blends per-metric MAE after normalizing each to a
// rough practical range. Weights renormalize over whichever metrics a
// source actually produced.
const (
	tempMaxScale  = 6.0
	tempMinScale  = 6.0
	windMaxScale  = 25.0
	tempMaxWeight = 0.4
	tempMinWeight = 0.3
	windMaxWeight = 0.3
)

func CompositeError(maeTempMax, maeTempMin, maeWindMax sql.NullFloat64) sql.NullFloat64 {
	var sum, totalW float64
	present := false

	if maeTempMax.Valid {
		sum += maeTempMax.Float64 / tempMaxScale * tempMaxWeight
		totalW += tempMaxWeight
		present = true
	}
	if maeTempMin.Valid {
		sum += maeTempMin.Float64 / tempMinScale * tempMinWeight
		totalW += tempMinWeight
		present = true
	}
	if maeWindMax.Valid {
		sum += maeWindMax.Float64 / windMaxScale * windMaxWeight
		totalW += windMaxWeight
		present = true
	}
	if !present {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: sum / totalW, Valid: true}
}

// ConfidenceFromError maps composite error onto a 5..99 percent scale.
// An undefined error yields the neutral 50.
func ConfidenceFromError(composite sql.NullFloat64) float64 {
	if !composite.Valid {
		return 50.0
	}
	score := 100.0 * math.Exp(-composite.Float64)
	score = math.Round(score*10) / 10
	return math.Max(5.0, math.Min(99.0, score))
}

func meanAbs(errors []float64) sql.NullFloat64 {
	if len(errors) == 0 {
		return sql.NullFloat64{}
	}
	var sum float64
	for _, e := range errors {
		sum += e
	}
	return sql.NullFloat64{Float64: sum / float64(len(errors)), Valid: true}
}

// EvaluateAndStore grades every source's latest pre-target-day forecast
// against the actuals for that date and persists one score row per
// source that produced at least one comparable value.
func EvaluateAndStore(st *store.Store, targetDate time.Time, srcs []string) (map[string]models.SourceScore, error) {
	if len(srcs) == 0 {
		return map[string]models.SourceScore{}, nil
	}

	pairs, err := st.ScoringPairs(targetDate, targetDate, srcs)
	if err != nil {
		return nil, fmt.Errorf("load scoring pairs: %w", err)
	}

	type errGroup struct {
		tempMax, tempMin, windMax []float64
	}
	grouped := make(map[string]*errGroup)
	for _, p := range pairs {
		g := grouped[p.Source]
		if g == nil {
			g = &errGroup{}
			grouped[p.Source] = g
		}
		if p.Forecast.TempMax.Valid && p.Actual.TempMax.Valid {
			g.tempMax = append(g.tempMax, math.Abs(p.Forecast.TempMax.Float64-p.Actual.TempMax.Float64))
		}
		if p.Forecast.TempMin.Valid && p.Actual.TempMin.Valid {
			g.tempMin = append(g.tempMin, math.Abs(p.Forecast.TempMin.Float64-p.Actual.TempMin.Float64))
		}
		if p.Forecast.WindMax.Valid && p.Actual.WindMax.Valid {
			g.windMax = append(g.windMax, math.Abs(p.Forecast.WindMax.Float64-p.Actual.WindMax.Float64))
		}
	}

	results := make(map[string]models.SourceScore)
	for _, src := range srcs {
		g := grouped[src]
		if g == nil {
			continue
		}
		sampleCount := len(g.tempMax)
		if len(g.tempMin) > sampleCount {
			sampleCount = len(g.tempMin)
		}
		if len(g.windMax) > sampleCount {
			sampleCount = len(g.windMax)
		}
		if sampleCount == 0 {
			continue
		}

		score := models.SourceScore{
			Date:        targetDate,
			Source:      src,
			MAETempMax:  meanAbs(g.tempMax),
			MAETempMin:  meanAbs(g.tempMin),
			MAEWindMax:  meanAbs(g.windMax),
			SampleCount: sampleCount,
		}
		score.CompositeError = CompositeError(score.MAETempMax, score.MAETempMin, score.MAEWindMax)
		score.Confidence = ConfidenceFromError(score.CompositeError)

		if err := st.UpsertScore(score); err != nil {
			return nil, fmt.Errorf("store score for %s: %w", src, err)
		}
		metrics.SourcesScored.WithLabelValues(src).Inc()
		results[src] = score
	}
	return results, nil
}
