// Package briefing renders the daily report: ensemble forecast per
// zone, benchmark summary, activity suitability and source standing.
// Rendering is pure; given the same inputs the output is identical.
package briefing

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/felixlee/mountainbrief/internal/bench"
	"github.com/felixlee/mountainbrief/internal/models"
	"github.com/felixlee/mountainbrief/internal/sources"
)

// Input is everything a single day's briefing needs. Forecasts are
// keyed zone name then source key.
type Input struct {
	ForecastDate time.Time
	EvalDate     time.Time
	Zones        []models.Zone

	ConfiguredSources []string
	AvailableSources  []string
	SkippedSources    []string
	MissingSources    []string

	Forecasts   map[string]map[string]models.Metrics
	Rolling     map[string]models.RollingStat
	Weights     map[string]float64
	EvalResults map[string]models.SourceScore
	MWISLinks   []string

	LookbackDays int
}

func fmtVal(v sql.NullFloat64) string {
	if !v.Valid {
		return "?"
	}
	return fmt.Sprintf("%.1f", v.Float64)
}

func fmtFloat(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

func windBand(kmh sql.NullFloat64) string {
	switch {
	case !kmh.Valid:
		return "unknown wind"
	case kmh.Float64 < 15:
		return "light wind"
	case kmh.Float64 < 30:
		return "moderate wind"
	case kmh.Float64 < 45:
		return "strong wind"
	}
	return "very strong wind"
}

func kmhToMphVal(kmh sql.NullFloat64) sql.NullFloat64 {
	if !kmh.Valid {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: sources.KmhToMph(kmh.Float64), Valid: true}
}

func bestWindow(tmin, tmax, wind sql.NullFloat64) string {
	switch {
	case !wind.Valid:
		return "best window uncertain due limited wind data"
	case wind.Float64 >= 45:
		return "best window is brief lower-level outings only"
	case wind.Float64 >= 30:
		return "best window is late morning to early afternoon on sheltered routes"
	case tmin.Valid && tmin.Float64 <= -2:
		return "best window is late morning through afternoon after early cold"
	}
	return "best window is mid-morning through mid-afternoon"
}

func zoneLine(name string, tmin, tmax, wind, spreadTemp, spreadWind sql.NullFloat64) string {
	if !tmin.Valid && !tmax.Valid && !wind.Valid {
		return fmt.Sprintf("- %s: forecast unavailable from current source set.", name)
	}

	var stability []string
	if spreadTemp.Valid && spreadTemp.Float64 >= 4 {
		stability = append(stability, "higher model spread on temperature")
	}
	if spreadWind.Valid && spreadWind.Float64 >= 15 {
		stability = append(stability, "higher model spread on wind")
	}
	stabilityText := ""
	if len(stability) > 0 {
		stabilityText = "; " + strings.Join(stability, ", ")
	}

	freezing := ""
	if tmax.Valid && tmax.Float64 <= 1 {
		freezing = " Temperatures stay near/below freezing on higher ground."
	} else if tmin.Valid && tmin.Float64 <= 0 {
		freezing = " Early frost/ice risk on exposed sections."
	}

	return fmt.Sprintf("- %s - %s -> %s C. %s, peaking near %s km/h (%s mph)%s. %s.%s",
		name, fmtVal(tmin), fmtVal(tmax),
		windBand(wind), fmtVal(wind), fmtVal(kmhToMphVal(wind)),
		stabilityText, bestWindow(tmin, tmax, wind), freezing)
}

type suitability struct {
	cycling, hiking, skiing string
}

func suitabilityLevel(score int) string {
	switch {
	case score >= 2:
		return "Good"
	case score >= 0:
		return "Fair"
	}
	return "Poor"
}

// rateActivities scores cycling, hiking and skiing from the combined
// wind and temperature picture. Each activity starts from its own
// baseline and moves with the thresholds below.
func rateActivities(tmin, tmax, wind sql.NullFloat64) suitability {
	cycling, hiking, skiing := 1, 1, -1

	if wind.Valid {
		switch {
		case wind.Float64 >= 40:
			cycling -= 3
			hiking -= 2
			skiing--
		case wind.Float64 >= 30:
			cycling -= 2
			hiking--
		case wind.Float64 <= 18:
			cycling++
			hiking++
		}
	}

	if tmin.Valid && tmax.Valid {
		if tmax.Float64 >= 22 {
			cycling--
			hiking--
			skiing -= 2
		}
		if tmin.Float64 <= -3 {
			cycling -= 2
			hiking--
			skiing++
		}
		switch {
		case tmax.Float64 <= 3:
			skiing += 2
		case tmax.Float64 <= 6:
			skiing++
		case tmax.Float64 >= 10:
			skiing -= 2
		}
		if tmax.Float64 >= 3 && tmax.Float64 <= 18 && tmin.Float64 >= -1 {
			cycling++
			hiking++
		}
	}

	return suitability{
		cycling: suitabilityLevel(cycling),
		hiking:  suitabilityLevel(hiking),
		skiing:  suitabilityLevel(skiing),
	}
}

func goLine(tmin, tmax, wind sql.NullFloat64, s suitability) string {
	switch {
	case wind.Valid && wind.Float64 >= 45:
		return "Go only if you are comfortable with very exposed, windy terrain."
	case tmax.Valid && tmax.Float64 <= 2:
		return "Go if you are equipped for wintry ground; skiing is favored over cycling."
	case s.cycling == "Good" && s.hiking == "Good":
		return "Go if you are fine with cool, potentially damp conditions; comfort is straightforward with layered kit."
	}
	return "Go with standard hill caution; conditions are generally manageable on sheltered routes."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func cautionsLine(tmin, tmax, wind sql.NullFloat64) string {
	var cautions []string
	if tmin.Valid && tmin.Float64 <= 0 {
		cautions = append(cautions, "freeze/thaw patches can make paths and roads slick early/late")
	}
	if wind.Valid && wind.Float64 >= 30 {
		cautions = append(cautions, "exposed ridges and plateaus will feel significantly windier")
	}
	if tmax.Valid && tmax.Float64 >= 18 {
		cautions = append(cautions, "unexpected warm spells can soften snowpack and increase slush")
	}
	if len(cautions) == 0 {
		return "No major wind/temperature hazards indicated; still verify local rain and visibility before departure."
	}
	return capitalize(strings.Join(cautions, "; ")) + "."
}

func adjustmentsLine(tmin, wind sql.NullFloat64, s suitability) string {
	var adjustments []string
	if wind.Valid && wind.Float64 >= 30 {
		adjustments = append(adjustments, "pack a windproof shell and full-finger gloves")
	}
	if tmin.Valid && tmin.Float64 <= 0 {
		adjustments = append(adjustments, "carry traction aid for icy sections")
	}
	if s.cycling != "Good" {
		adjustments = append(adjustments, "reduce tyre pressure slightly and leave extra braking margin on descents")
	}
	if s.skiing == "Good" {
		adjustments = append(adjustments, "bring goggles and cold-weather layers for exposed sections")
	}
	if len(adjustments) == 0 {
		adjustments = append(adjustments, "carry a light shell and one dry spare layer for after activity")
	}
	return capitalize(strings.Join(adjustments, "; ")) + "."
}

func suitabilityBlock(name string, tmin, tmax, wind sql.NullFloat64) []string {
	s := rateActivities(tmin, tmax, wind)
	return []string{
		"- " + name,
		"  Go: " + goLine(tmin, tmax, wind, s),
		"  Cautions: " + cautionsLine(tmin, tmax, wind),
		"  Nice-to-have adjustments: " + adjustmentsLine(tmin, wind, s),
		fmt.Sprintf("  Ratings: Cycling %s, Hiking %s, Skiing %s", s.cycling, s.hiking, s.skiing),
	}
}

type zoneEnsemble struct {
	tempMax, tempMin, windMax sql.NullFloat64
}

// Render builds the full briefing text.
func Render(in Input) string {
	var lines []string
	add := func(s string) { lines = append(lines, s) }

	add(fmt.Sprintf("Scottish mountains forecast (adaptive) - %s (UK)", models.DateOnly(in.ForecastDate)))
	add("Sources benchmarked daily; ensemble weights auto-updated.")
	add("")

	available := make(map[string]bool, len(in.AvailableSources))
	for _, s := range in.AvailableSources {
		available[s] = true
	}
	var reportSources []string
	for _, s := range in.ConfiguredSources {
		if available[s] {
			reportSources = append(reportSources, s)
		}
	}

	add("1) Latest forecast by zone (with briefing)")
	zoneRows := make(map[string]zoneEnsemble, len(in.Zones))
	for _, zone := range in.Zones {
		sourceRows := in.Forecasts[zone.Name]

		tmaxBySource := make(map[string]sql.NullFloat64, len(in.AvailableSources))
		tminBySource := make(map[string]sql.NullFloat64, len(in.AvailableSources))
		windBySource := make(map[string]sql.NullFloat64, len(in.AvailableSources))
		for _, src := range in.AvailableSources {
			m := sourceRows[src]
			tmaxBySource[src] = m.TempMax
			tminBySource[src] = m.TempMin
			windBySource[src] = m.WindMax
		}

		row := zoneEnsemble{
			tempMax: bench.WeightedMetric(tmaxBySource, in.Weights),
			tempMin: bench.WeightedMetric(tminBySource, in.Weights),
			windMax: bench.WeightedMetric(windBySource, in.Weights),
		}
		zoneRows[zone.Name] = row

		add(zoneLine(zone.Name, row.tempMin, row.tempMax, row.windMax,
			bench.Spread(tmaxBySource), bench.Spread(windBySource)))
	}

	add("")
	add(fmt.Sprintf("2) Latest benchmark (%s)", models.DateOnly(in.EvalDate)))
	if len(in.EvalResults) > 0 {
		for _, src := range reportSources {
			r, ok := in.EvalResults[src]
			if !ok {
				continue
			}
			add(fmt.Sprintf("- %s: conf %s%%, MAE Tmax %sC, Tmin %sC, Wind %s km/h",
				sources.Label(src), fmtFloat(r.Confidence),
				fmtVal(r.MAETempMax), fmtVal(r.MAETempMin), fmtVal(r.MAEWindMax)))
		}
	} else {
		add("- Not enough history yet (scores start filling after 1 full day).")
	}

	add("")
	add("3) Suitability for Cycling/Hiking/Skiing")
	for _, zone := range in.Zones {
		row := zoneRows[zone.Name]
		lines = append(lines, suitabilityBlock(zone.Name, row.tempMin, row.tempMax, row.windMax)...)
		add("")
	}

	add("")
	add(fmt.Sprintf("4) Forecasting source with confidence %% (last %d scored days)", in.LookbackDays))
	for _, src := range reportSources {
		stat := in.Rolling[src]
		add(fmt.Sprintf("- %s: %s%% confidence (weight %s%%, samples %d)",
			sources.Label(src), fmtFloat(stat.RollingConfidence),
			fmtFloat(in.Weights[src]*100.0), stat.Samples))
	}
	if len(reportSources) == 0 {
		add("- No source produced usable metrics for this run.")
	}

	if len(in.SkippedSources) > 0 {
		var skipped []string
		for _, src := range in.SkippedSources {
			skipped = append(skipped, sources.Label(src))
		}
		add("- Skipped errored sources this run: " + strings.Join(skipped, ", "))
	}

	for _, src := range in.MissingSources {
		add(fmt.Sprintf("- %s: not configured (%s missing)", sources.Label(src), sources.CredentialHint(src)))
	}

	add("")
	add("5) Latest Full PDF links")
	if len(in.MWISLinks) > 0 {
		for _, link := range in.MWISLinks {
			add("- " + link)
		}
	} else {
		add("- No PDF links found in this run.")
	}

	return strings.Join(lines, "\n")
}

// Degraded renders the fallback report when the pipeline itself fails.
func Degraded(forecastDate time.Time, err error) string {
	return fmt.Sprintf("Scottish mountains forecast (adaptive) - %s (UK)\n"+
		"Daily report generated with degraded mode due internal error.\n"+
		"Error: %v", models.DateOnly(forecastDate), err)
}
