package models

import (
	"database/sql"
	"time"
)

// Zone is one of the fixed mountain areas the briefing covers.
type Zone struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Metrics is the common triple every source adapter normalizes into.
// Each field is independently nullable: a source may supply temperature
// but not wind, and absence is never coerced to zero.
type Metrics struct {
	TempMax sql.NullFloat64 // °C
	TempMin sql.NullFloat64 // °C
	WindMax sql.NullFloat64 // km/h
}

// HasAny reports whether at least one metric is present.
func (m Metrics) HasAny() bool {
	return m.TempMax.Valid || m.TempMin.Valid || m.WindMax.Valid
}

// Forecast is one source's prediction for a zone on a target date, as
// captured on a run date. Keyed by (run_date, target_date, source, zone).
// Re-captures on the same run date overwrite; rows are never deleted, so
// the history of what each source said about a day is preserved across
// run dates.
type Forecast struct {
	RunDate    time.Time
	TargetDate time.Time
	Source     string
	Zone       string
	Latitude   float64
	Longitude  float64
	Metrics
	CreatedAt time.Time
}

// Actual is the observed outcome for a zone on a date, sourced from the
// trusted reference archive. Keyed by (date, zone).
type Actual struct {
	Date      time.Time
	Zone      string
	Latitude  float64
	Longitude float64
	Metrics
	CreatedAt time.Time
}

// SourceScore is the nightly benchmark of one source against actuals for
// one target date. Keyed by (date, source). Not stored when SampleCount
// is zero.
type SourceScore struct {
	Date           time.Time
	Source         string
	MAETempMax     sql.NullFloat64
	MAETempMin     sql.NullFloat64
	MAEWindMax     sql.NullFloat64
	CompositeError sql.NullFloat64
	Confidence     float64
	SampleCount    int
	CreatedAt      time.Time
}

// SourceWeight is one source's normalized ensemble share, effective from
// a run date. Weights stored for a date sum to 1 across that day's set.
type SourceWeight struct {
	Date              time.Time
	Source            string
	Weight            float64
	RollingConfidence float64
	LookbackDays      int
	CreatedAt         time.Time
}

// RollingStat is a source's lookback-window aggregate used for weighting.
type RollingStat struct {
	RollingConfidence float64
	RollingError      float64
	Samples           int
}

// DateOnly formats a time as the calendar-date key used by the store.
func DateOnly(t time.Time) string {
	return t.Format("2006-01-02")
}
