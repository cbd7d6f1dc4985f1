package briefing

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/felixlee/mountainbrief/internal/models"
	"github.com/felixlee/mountainbrief/internal/sources"
)

func nf(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func TestWindBand(t *testing.T) {
	tests := []struct {
		kmh  sql.NullFloat64
		want string
	}{
		{sql.NullFloat64{}, "unknown wind"},
		{nf(10.0), "light wind"},
		{nf(15.0), "moderate wind"},
		{nf(29.9), "moderate wind"},
		{nf(30.0), "strong wind"},
		{nf(44.9), "strong wind"},
		{nf(45.0), "very strong wind"},
	}
	for _, tt := range tests {
		if got := windBand(tt.kmh); got != tt.want {
			t.Errorf("windBand(%+v) = %q, want %q", tt.kmh, got, tt.want)
		}
	}
}

func TestRateActivitiesWindSensitivity(t *testing.T) {
	// Cold day with snow-holding temperatures: calm wind favors skiing,
	// a gale knocks every rating down.
	tmin, tmax := nf(-4.0), nf(1.0)

	calm := rateActivities(tmin, tmax, nf(10.0))
	if calm.skiing != "Good" {
		t.Errorf("skiing at 10 km/h = %q, want Good", calm.skiing)
	}

	gale := rateActivities(tmin, tmax, nf(50.0))
	if gale.skiing != "Fair" {
		t.Errorf("skiing at 50 km/h = %q, want Fair", gale.skiing)
	}
	if gale.cycling != "Poor" {
		t.Errorf("cycling at 50 km/h = %q, want Poor", gale.cycling)
	}
}

func TestZoneLineUnavailable(t *testing.T) {
	got := zoneLine("Glencoe", sql.NullFloat64{}, sql.NullFloat64{}, sql.NullFloat64{}, sql.NullFloat64{}, sql.NullFloat64{})
	want := "- Glencoe: forecast unavailable from current source set."
	if got != want {
		t.Errorf("zoneLine = %q, want %q", got, want)
	}
}

func TestZoneLineSpreadAndFreezing(t *testing.T) {
	got := zoneLine("Cairngorms", nf(-2.0), nf(0.5), nf(38.0), nf(5.0), nf(20.0))
	for _, fragment := range []string{
		"higher model spread on temperature",
		"higher model spread on wind",
		"strong wind",
		"Temperatures stay near/below freezing on higher ground.",
		"best window is late morning to early afternoon on sheltered routes",
	} {
		if !strings.Contains(got, fragment) {
			t.Errorf("zone line missing %q:\n%s", fragment, got)
		}
	}
}

func testInput(t *testing.T) Input {
	t.Helper()
	zones := []models.Zone{
		{Name: "Glencoe", Latitude: 56.68, Longitude: -5.10},
		{Name: "Ben Nevis", Latitude: 56.7969, Longitude: -5.0036},
	}
	return Input{
		ForecastDate:      mustDate(t, "2026-03-02"),
		EvalDate:          mustDate(t, "2026-02-28"),
		Zones:             zones,
		ConfiguredSources: []string{sources.KeyOpenMeteo, sources.KeyMetNo, sources.KeyMetOffice},
		AvailableSources:  []string{sources.KeyOpenMeteo, sources.KeyMetNo},
		SkippedSources:    []string{sources.KeyMetOffice},
		MissingSources:    []string{sources.KeyOpenWeather},
		Forecasts: map[string]map[string]models.Metrics{
			"Glencoe": {
				sources.KeyOpenMeteo: {TempMax: nf(6.0), TempMin: nf(1.0), WindMax: nf(25.0)},
				sources.KeyMetNo:     {TempMax: nf(4.0), TempMin: nf(-1.0), WindMax: nf(35.0)},
			},
		},
		Rolling: map[string]models.RollingStat{
			sources.KeyOpenMeteo: {RollingConfidence: 72.5, RollingError: 0.3, Samples: 9},
			sources.KeyMetNo:     {RollingConfidence: 55.0, RollingError: 1.0, Samples: 0},
		},
		Weights: map[string]float64{
			sources.KeyOpenMeteo: 0.7,
			sources.KeyMetNo:     0.3,
		},
		EvalResults: map[string]models.SourceScore{
			sources.KeyOpenMeteo: {
				Source:     sources.KeyOpenMeteo,
				MAETempMax: nf(1.2),
				Confidence: 80.5,
			},
		},
		MWISLinks:    []string{"https://www.mwis.org.uk/pdf/WH.pdf"},
		LookbackDays: 14,
	}
}

func TestRenderSections(t *testing.T) {
	out := Render(testInput(t))

	for _, fragment := range []string{
		"Scottish mountains forecast (adaptive) - 2026-03-02 (UK)",
		"1) Latest forecast by zone (with briefing)",
		"2) Latest benchmark (2026-02-28)",
		"3) Suitability for Cycling/Hiking/Skiing",
		"4) Forecasting source with confidence % (last 14 scored days)",
		"5) Latest Full PDF links",
		"- Open-Meteo: conf 80.5%, MAE Tmax 1.2C, Tmin ?C, Wind ? km/h",
		"- Open-Meteo: 72.5% confidence (weight 70.0%, samples 9)",
		"- MET Norway: 55.0% confidence (weight 30.0%, samples 0)",
		"- Skipped errored sources this run: UK Met Office",
		"- OpenWeather: not configured (OPENWEATHER_API_KEY missing)",
		"- https://www.mwis.org.uk/pdf/WH.pdf",
		"- Ben Nevis: forecast unavailable from current source set.",
	} {
		if !strings.Contains(out, fragment) {
			t.Errorf("briefing missing %q\n---\n%s", fragment, out)
		}
	}

	// Weighted ensemble for Glencoe: 0.7*6 + 0.3*4 = 5.4 max temp.
	if !strings.Contains(out, "- Glencoe - 0.4 -> 5.4 C.") {
		t.Errorf("Glencoe ensemble line wrong:\n%s", out)
	}
}

func TestRenderDeterministic(t *testing.T) {
	in := testInput(t)
	first := Render(in)
	for i := 0; i < 5; i++ {
		if got := Render(in); got != first {
			t.Fatalf("render not deterministic on iteration %d", i)
		}
	}
}

func TestRenderNoHistory(t *testing.T) {
	in := testInput(t)
	in.EvalResults = nil
	out := Render(in)
	if !strings.Contains(out, "- Not enough history yet (scores start filling after 1 full day).") {
		t.Errorf("missing no-history line:\n%s", out)
	}
}

func TestRenderNoAvailableSources(t *testing.T) {
	in := testInput(t)
	in.AvailableSources = nil
	in.Forecasts = nil
	out := Render(in)
	if !strings.Contains(out, "- No source produced usable metrics for this run.") {
		t.Errorf("missing empty-source line:\n%s", out)
	}
}

func TestRenderNoLinks(t *testing.T) {
	in := testInput(t)
	in.MWISLinks = nil
	out := Render(in)
	if !strings.Contains(out, "- No PDF links found in this run.") {
		t.Errorf("missing no-links line:\n%s", out)
	}
}

func TestDegraded(t *testing.T) {
	out := Degraded(mustDate(t, "2026-03-02"), context.DeadlineExceeded)
	if !strings.Contains(out, "degraded mode") || !strings.Contains(out, "2026-03-02") {
		t.Errorf("degraded output = %q", out)
	}
}
