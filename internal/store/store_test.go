package store

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/felixlee/mountainbrief/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(db)
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := newTestStore(t)

	if err := s.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	version, err := s.MigrationVersion()
	if err != nil {
		t.Fatalf("migration version: %v", err)
	}
	if version != migrations[len(migrations)-1].Version {
		t.Errorf("version = %d, want %d", version, migrations[len(migrations)-1].Version)
	}
}

func nf(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func TestUpsertForecastIdempotent(t *testing.T) {
	s := newTestStore(t)
	run := mustDate(t, "2026-03-01")
	target := mustDate(t, "2026-03-02")

	f := models.Forecast{
		RunDate:    run,
		TargetDate: target,
		Source:     "open-meteo",
		Zone:       "Glencoe",
		Latitude:   56.68,
		Longitude:  -5.10,
		Metrics:    models.Metrics{TempMax: nf(4.0), TempMin: nf(-2.0), WindMax: nf(38.5)},
	}
	if err := s.UpsertForecast(f); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	f.TempMax = nf(5.5)
	if err := s.UpsertForecast(f); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.GetForecast(run, target, "open-meteo", "Glencoe")
	if err != nil {
		t.Fatalf("get forecast: %v", err)
	}
	if got == nil {
		t.Fatal("expected forecast row")
	}
	if got.TempMax.Float64 != 5.5 {
		t.Errorf("temp_max = %v, want 5.5 (latest write wins)", got.TempMax.Float64)
	}

	count, err := s.CountForecasts(target, "open-meteo", "Glencoe")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}
}

func TestUpsertForecastNullMetrics(t *testing.T) {
	s := newTestStore(t)
	run := mustDate(t, "2026-03-01")
	target := mustDate(t, "2026-03-02")

	f := models.Forecast{
		RunDate:    run,
		TargetDate: target,
		Source:     "met-norway",
		Zone:       "Ben Nevis",
		Latitude:   56.7969,
		Longitude:  -5.0036,
		Metrics:    models.Metrics{WindMax: nf(52.0)},
	}
	if err := s.UpsertForecast(f); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetForecast(run, target, "met-norway", "Ben Nevis")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TempMax.Valid || got.TempMin.Valid {
		t.Errorf("temperature fields should be null, got %+v", got.Metrics)
	}
	if !got.WindMax.Valid || got.WindMax.Float64 != 52.0 {
		t.Errorf("wind_max = %+v, want 52.0", got.WindMax)
	}
}

func TestScoringPairsLatestBeforeCutoff(t *testing.T) {
	s := newTestStore(t)
	target := mustDate(t, "2026-03-05")

	// Three runs; only the two before the cutoff are eligible and the
	// later of those must win.
	for _, row := range []struct {
		run  string
		tmax float64
	}{
		{"2026-03-02", 1.0},
		{"2026-03-04", 3.0},
		{"2026-03-05", 9.0},
	} {
		err := s.UpsertForecast(models.Forecast{
			RunDate:    mustDate(t, row.run),
			TargetDate: target,
			Source:     "open-meteo",
			Zone:       "Glenshee",
			Latitude:   56.8526,
			Longitude:  -3.4258,
			Metrics:    models.Metrics{TempMax: nf(row.tmax)},
		})
		if err != nil {
			t.Fatalf("upsert run %s: %v", row.run, err)
		}
	}

	err := s.UpsertActual(models.Actual{
		Date:      target,
		Zone:      "Glenshee",
		Latitude:  56.8526,
		Longitude: -3.4258,
		Metrics:   models.Metrics{TempMax: nf(2.0)},
	})
	if err != nil {
		t.Fatalf("upsert actual: %v", err)
	}

	pairs, err := s.ScoringPairs(target, mustDate(t, "2026-03-05"), []string{"open-meteo"})
	if err != nil {
		t.Fatalf("scoring pairs: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	p := pairs[0]
	if p.Forecast.TempMax.Float64 != 3.0 {
		t.Errorf("forecast temp_max = %v, want 3.0 (run 2026-03-04)", p.Forecast.TempMax.Float64)
	}
	if p.Actual.TempMax.Float64 != 2.0 {
		t.Errorf("actual temp_max = %v, want 2.0", p.Actual.TempMax.Float64)
	}
}

func TestScoringPairsRequireActual(t *testing.T) {
	s := newTestStore(t)
	target := mustDate(t, "2026-03-05")

	err := s.UpsertForecast(models.Forecast{
		RunDate:    mustDate(t, "2026-03-04"),
		TargetDate: target,
		Source:     "open-meteo",
		Zone:       "Cairngorms",
		Latitude:   57.1,
		Longitude:  -3.7,
		Metrics:    models.Metrics{TempMax: nf(0.0)},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	pairs, err := s.ScoringPairs(target, mustDate(t, "2026-03-05"), []string{"open-meteo"})
	if err != nil {
		t.Fatalf("scoring pairs: %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("got %d pairs without an actual, want 0", len(pairs))
	}
}

func TestLatestForecasts(t *testing.T) {
	s := newTestStore(t)
	target := mustDate(t, "2026-03-02")

	for _, row := range []struct {
		run    string
		source string
		zone   string
		tmax   float64
	}{
		{"2026-03-01", "open-meteo", "Glencoe", 1.0},
		{"2026-03-02", "open-meteo", "Glencoe", 2.0},
		{"2026-03-02", "met-norway", "Glencoe", 3.0},
		{"2026-03-02", "open-meteo", "Ben Nevis", 4.0},
	} {
		err := s.UpsertForecast(models.Forecast{
			RunDate:    mustDate(t, row.run),
			TargetDate: target,
			Source:     row.source,
			Zone:       row.zone,
			Metrics:    models.Metrics{TempMax: nf(row.tmax)},
		})
		if err != nil {
			t.Fatalf("upsert %s/%s: %v", row.source, row.zone, err)
		}
	}

	latest, err := s.LatestForecasts(target, []string{"open-meteo", "met-norway"})
	if err != nil {
		t.Fatalf("latest forecasts: %v", err)
	}
	if got := latest["Glencoe"]["open-meteo"].TempMax.Float64; got != 2.0 {
		t.Errorf("Glencoe/open-meteo temp_max = %v, want 2.0 (latest run)", got)
	}
	if got := latest["Glencoe"]["met-norway"].TempMax.Float64; got != 3.0 {
		t.Errorf("Glencoe/met-norway temp_max = %v, want 3.0", got)
	}
	if got := latest["Ben Nevis"]["open-meteo"].TempMax.Float64; got != 4.0 {
		t.Errorf("Ben Nevis/open-meteo temp_max = %v, want 4.0", got)
	}
}

func TestSourcesWithForecasts(t *testing.T) {
	s := newTestStore(t)
	target := mustDate(t, "2026-03-02")

	if err := s.UpsertForecast(models.Forecast{
		RunDate:    mustDate(t, "2026-03-01"),
		TargetDate: target,
		Source:     "open-meteo",
		Zone:       "Glencoe",
		Metrics:    models.Metrics{TempMax: nf(1.0)},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// All-null row does not make a source available.
	if err := s.UpsertForecast(models.Forecast{
		RunDate:    mustDate(t, "2026-03-01"),
		TargetDate: target,
		Source:     "met-office",
		Zone:       "Glencoe",
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.SourcesWithForecasts(target, []string{"open-meteo", "met-office", "google-weather"})
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(got) != 1 || got[0] != "open-meteo" {
		t.Errorf("available sources = %v, want [open-meteo]", got)
	}
}

func TestUpsertScoreAndLookback(t *testing.T) {
	s := newTestStore(t)

	for _, row := range []struct {
		date string
		conf float64
	}{
		{"2026-03-01", 60.0},
		{"2026-03-02", 70.0},
		{"2026-03-03", 80.0},
	} {
		err := s.UpsertScore(models.SourceScore{
			Date:           mustDate(t, row.date),
			Source:         "open-meteo",
			MAETempMax:     nf(1.5),
			CompositeError: nf(0.4),
			Confidence:     row.conf,
			SampleCount:    4,
		})
		if err != nil {
			t.Fatalf("upsert score %s: %v", row.date, err)
		}
	}

	// Overwrite the middle day.
	err := s.UpsertScore(models.SourceScore{
		Date:           mustDate(t, "2026-03-02"),
		Source:         "open-meteo",
		MAETempMax:     nf(2.0),
		CompositeError: nf(0.5),
		Confidence:     65.0,
		SampleCount:    4,
	})
	if err != nil {
		t.Fatalf("overwrite score: %v", err)
	}

	scores, err := s.ScoresOnOrBefore(mustDate(t, "2026-03-02"), []string{"open-meteo"})
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("got %d scores, want 2 (as-of filter)", len(scores))
	}
	if scores[0].Date.Format("2006-01-02") != "2026-03-02" {
		t.Errorf("first score date = %v, want 2026-03-02 (most recent first)", scores[0].Date)
	}
	if scores[0].Confidence != 65.0 {
		t.Errorf("confidence = %v, want 65.0 after overwrite", scores[0].Confidence)
	}
}

func TestUpsertWeight(t *testing.T) {
	s := newTestStore(t)
	date := mustDate(t, "2026-03-02")

	w := models.SourceWeight{
		Date:              date,
		Source:            "met-norway",
		Weight:            0.35,
		RollingConfidence: 62.0,
		LookbackDays:      14,
	}
	if err := s.UpsertWeight(w); err != nil {
		t.Fatalf("upsert weight: %v", err)
	}
	w.Weight = 0.40
	if err := s.UpsertWeight(w); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	weights, err := s.GetWeights(date)
	if err != nil {
		t.Fatalf("get weights: %v", err)
	}
	if len(weights) != 1 {
		t.Fatalf("got %d weights, want 1", len(weights))
	}
	if weights[0].Weight != 0.40 {
		t.Errorf("weight = %v, want 0.40", weights[0].Weight)
	}
	if weights[0].LookbackDays != 14 {
		t.Errorf("lookback_days = %d, want 14", weights[0].LookbackDays)
	}
}
