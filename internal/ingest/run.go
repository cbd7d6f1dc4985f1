package ingest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/felixlee/mountainbrief/internal/bench"
	"github.com/felixlee/mountainbrief/internal/briefing"
	"github.com/felixlee/mountainbrief/internal/models"
	"github.com/felixlee/mountainbrief/internal/sources"
	"github.com/felixlee/mountainbrief/internal/store"
)

// Runner wires one daily run end to end.
type Runner struct {
	Store          *store.Store
	Sources        []sources.Source
	Actuals        ActualsFetcher
	Notes          *sources.Notes
	Zones          []models.Zone
	MissingSources []string
	MWISClient     *http.Client // nil disables the PDF link scrape
	LookbackDays   int
}

// Run executes the full pipeline for "today" and returns the rendered
// briefing. Forecasts target tomorrow; yesterday gets benchmarked.
func (r *Runner) Run(ctx context.Context, today time.Time) (string, error) {
	lookback := r.LookbackDays
	if lookback <= 0 {
		lookback = bench.LookbackDays
	}

	runDate := today
	forecastDate := today.AddDate(0, 0, 1)
	evalDate := today.AddDate(0, 0, -1)

	configured := make([]string, 0, len(r.Sources))
	for _, src := range r.Sources {
		configured = append(configured, src.Key())
	}

	CaptureForecasts(ctx, r.Store, r.Sources, r.Notes, r.Zones, runDate, forecastDate)
	CaptureActuals(ctx, r.Store, r.Actuals, r.Zones, evalDate)

	available, err := r.Store.SourcesWithForecasts(forecastDate, configured)
	if err != nil {
		return "", fmt.Errorf("list available sources: %w", err)
	}

	availableSet := make(map[string]bool, len(available))
	for _, s := range available {
		availableSet[s] = true
	}
	var skipped []string
	for _, s := range configured {
		if !availableSet[s] && r.Notes.Has(s) {
			skipped = append(skipped, s)
		}
	}

	evalResults, err := bench.EvaluateAndStore(r.Store, evalDate, configured)
	if err != nil {
		return "", fmt.Errorf("benchmark: %w", err)
	}

	rolling, err := bench.RollingStats(r.Store, evalDate, configured, lookback)
	if err != nil {
		return "", fmt.Errorf("rolling stats: %w", err)
	}

	weightSources := available
	if len(weightSources) == 0 {
		weightSources = configured
	}
	weights := bench.ComputeWeights(rolling, weightSources)
	if err := bench.StoreWeights(r.Store, runDate, weights, rolling, lookback); err != nil {
		return "", fmt.Errorf("store weights: %w", err)
	}

	forecasts, err := r.Store.LatestForecasts(forecastDate, available)
	if err != nil {
		return "", fmt.Errorf("load forecasts: %w", err)
	}

	var mwisLinks []string
	if r.MWISClient != nil {
		mwisLinks = sources.FetchMWISLinks(ctx, r.MWISClient, 5)
	}

	return briefing.Render(briefing.Input{
		ForecastDate:      forecastDate,
		EvalDate:          evalDate,
		Zones:             r.Zones,
		ConfiguredSources: configured,
		AvailableSources:  available,
		SkippedSources:    skipped,
		MissingSources:    r.MissingSources,
		Forecasts:         forecasts,
		Rolling:           rolling,
		Weights:           weights,
		EvalResults:       evalResults,
		MWISLinks:         mwisLinks,
		LookbackDays:      lookback,
	}), nil
}
