package bench

import (
	"fmt"
	"math"
	"time"

	"github.com/felixlee/mountainbrief/internal/models"
	"github.com/felixlee/mountainbrief/internal/store"
)

// Defaults for a source with no scored history yet. A mild optimism
// over the neutral 50 lets new sources participate immediately without
// dominating established ones.
const (
	defaultConfidence = 55.0
	defaultError      = 1.0
)

// RollingStats averages each source's confidence and composite error
// over its most recent scored days, capped at lookbackDays.
func RollingStats(st *store.Store, asOf time.Time, srcs []string, lookbackDays int) (map[string]models.RollingStat, error) {
	scores, err := st.ScoresOnOrBefore(asOf, srcs)
	if err != nil {
		return nil, fmt.Errorf("load score history: %w", err)
	}

	type bucket struct {
		conf, errs []float64
	}
	buckets := make(map[string]*bucket)
	for _, sc := range scores {
		b := buckets[sc.Source]
		if b == nil {
			b = &bucket{}
			buckets[sc.Source] = b
		}
		if len(b.conf) >= lookbackDays {
			continue
		}
		b.conf = append(b.conf, sc.Confidence)
		if sc.CompositeError.Valid {
			b.errs = append(b.errs, sc.CompositeError.Float64)
		}
	}

	out := make(map[string]models.RollingStat, len(srcs))
	for _, src := range srcs {
		stat := models.RollingStat{
			RollingConfidence: defaultConfidence,
			RollingError:      defaultError,
		}
		if b := buckets[src]; b != nil && len(b.conf) > 0 {
			var sum float64
			for _, c := range b.conf {
				sum += c
			}
			stat.RollingConfidence = math.Round(sum/float64(len(b.conf))*10) / 10
			stat.Samples = len(b.conf)

			if len(b.errs) > 0 {
				sum = 0
				for _, e := range b.errs {
					sum += e
				}
				stat.RollingError = sum / float64(len(b.errs))
			}
		}
		out[src] = stat
	}
	return out, nil
}

// ComputeWeights turns rolling confidence into normalized ensemble
// weights via an exponential transform, so a few points of confidence
// shift weight smoothly rather than winner-takes-all.
func ComputeWeights(rolling map[string]models.RollingStat, srcs []string) map[string]float64 {
	if len(srcs) == 0 {
		return map[string]float64{}
	}

	raw := make(map[string]float64, len(srcs))
	var total float64
	for _, src := range srcs {
		w := math.Exp((rolling[src].RollingConfidence - 50.0) / 20.0)
		raw[src] = w
		total += w
	}

	out := make(map[string]float64, len(srcs))
	if total <= 0 {
		uniform := 1.0 / float64(len(srcs))
		for _, src := range srcs {
			out[src] = uniform
		}
		return out
	}
	for _, src := range srcs {
		out[src] = raw[src] / total
	}
	return out
}

// StoreWeights persists the weight snapshot for the run date.
func StoreWeights(st *store.Store, date time.Time, weights map[string]float64, rolling map[string]models.RollingStat, lookbackDays int) error {
	for src, w := range weights {
		err := st.UpsertWeight(models.SourceWeight{
			Date:              date,
			Source:            src,
			Weight:            w,
			RollingConfidence: rolling[src].RollingConfidence,
			LookbackDays:      lookbackDays,
		})
		if err != nil {
			return fmt.Errorf("store weight for %s: %w", src, err)
		}
	}
	return nil
}
