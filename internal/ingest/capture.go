// Package ingest drives the daily pipeline: capture forecasts and
// actuals, benchmark yesterday, refresh ensemble weights and hand the
// results to the briefing renderer.
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/felixlee/mountainbrief/internal/metrics"
	"github.com/felixlee/mountainbrief/internal/models"
	"github.com/felixlee/mountainbrief/internal/sources"
	"github.com/felixlee/mountainbrief/internal/store"
)

// ActualsFetcher reads observed conditions for an elapsed date.
// Open-Meteo's archive endpoint is the single source of truth for
// actuals so every forecast source is graded against the same record.
type ActualsFetcher interface {
	FetchActual(ctx context.Context, zone models.Zone, date time.Time) (models.Metrics, error)
}

// CaptureForecasts fetches target-day forecasts from every source for
// every zone. A failing source is noted and skipped; it never blocks
// the other source/zone pairs.
func CaptureForecasts(ctx context.Context, st *store.Store, srcs []sources.Source, notes *sources.Notes,
	zones []models.Zone, runDate, targetDate time.Time) {
	for _, zone := range zones {
		for _, src := range srcs {
			m, err := src.Fetch(ctx, zone, targetDate)
			if err != nil {
				notes.Set(src.Key(), fmt.Sprintf("fetch failed (%v)", err))
				log.Printf("capture: %s %s: %v", src.Key(), zone.Name, err)
				continue
			}
			if !m.HasAny() {
				continue
			}
			f := models.Forecast{
				RunDate:    runDate,
				TargetDate: targetDate,
				Source:     src.Key(),
				Zone:       zone.Name,
				Latitude:   zone.Latitude,
				Longitude:  zone.Longitude,
				Metrics:    m,
			}
			if err := st.UpsertForecast(f); err != nil {
				log.Printf("capture: store %s %s: %v", src.Key(), zone.Name, err)
				continue
			}
			metrics.ForecastsCaptured.WithLabelValues(src.Key()).Inc()
		}
	}
}

// CaptureActuals records observed conditions for the evaluation date.
func CaptureActuals(ctx context.Context, st *store.Store, actuals ActualsFetcher, zones []models.Zone, date time.Time) {
	for _, zone := range zones {
		m, err := actuals.FetchActual(ctx, zone, date)
		if err != nil {
			log.Printf("actuals: %s: %v", zone.Name, err)
			continue
		}
		if !m.HasAny() {
			continue
		}
		a := models.Actual{
			Date:      date,
			Zone:      zone.Name,
			Latitude:  zone.Latitude,
			Longitude: zone.Longitude,
			Metrics:   m,
		}
		if err := st.UpsertActual(a); err != nil {
			log.Printf("actuals: store %s: %v", zone.Name, err)
			continue
		}
		metrics.ActualsCaptured.Inc()
	}
}
