package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/felixlee/mountainbrief/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const dateFormat = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateFormat, s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func sourceArgs(dates []string, sources []string) []any {
	args := make([]any, 0, len(dates)+len(sources))
	for _, d := range dates {
		args = append(args, d)
	}
	for _, src := range sources {
		args = append(args, src)
	}
	return args
}

func (s *Store) UpsertForecast(f models.Forecast) error {
	_, err := s.db.Exec(`
		INSERT INTO forecasts (run_date, target_date, source, zone, lat, lon, temp_max, temp_min, wind_max)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_date, target_date, source, zone) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			temp_max = excluded.temp_max,
			temp_min = excluded.temp_min,
			wind_max = excluded.wind_max
	`, models.DateOnly(f.RunDate), models.DateOnly(f.TargetDate), f.Source, f.Zone,
		f.Latitude, f.Longitude, f.TempMax, f.TempMin, f.WindMax)
	return err
}

func (s *Store) GetForecast(runDate, targetDate time.Time, source, zone string) (*models.Forecast, error) {
	row := s.db.QueryRow(`
		SELECT run_date, target_date, source, zone, lat, lon, temp_max, temp_min, wind_max
		FROM forecasts
		WHERE run_date = ? AND target_date = ? AND source = ? AND zone = ?
	`, models.DateOnly(runDate), models.DateOnly(targetDate), source, zone)

	var f models.Forecast
	var runStr, targetStr string
	err := row.Scan(&runStr, &targetStr, &f.Source, &f.Zone, &f.Latitude, &f.Longitude,
		&f.TempMax, &f.TempMin, &f.WindMax)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if f.RunDate, err = parseDate(runStr); err != nil {
		return nil, fmt.Errorf("parse run_date %q: %w", runStr, err)
	}
	if f.TargetDate, err = parseDate(targetStr); err != nil {
		return nil, fmt.Errorf("parse target_date %q: %w", targetStr, err)
	}
	return &f, nil
}

func (s *Store) CountForecasts(targetDate time.Time, source, zone string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM forecasts WHERE target_date = ? AND source = ? AND zone = ?
	`, models.DateOnly(targetDate), source, zone).Scan(&count)
	return count, err
}

func (s *Store) UpsertActual(a models.Actual) error {
	_, err := s.db.Exec(`
		INSERT INTO actuals (date, zone, lat, lon, temp_max, temp_min, wind_max)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, zone) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			temp_max = excluded.temp_max,
			temp_min = excluded.temp_min,
			wind_max = excluded.wind_max
	`, models.DateOnly(a.Date), a.Zone, a.Latitude, a.Longitude, a.TempMax, a.TempMin, a.WindMax)
	return err
}

func (s *Store) GetActual(date time.Time, zone string) (*models.Actual, error) {
	row := s.db.QueryRow(`
		SELECT date, zone, lat, lon, temp_max, temp_min, wind_max
		FROM actuals WHERE date = ? AND zone = ?
	`, models.DateOnly(date), zone)

	var a models.Actual
	var dateStr string
	err := row.Scan(&dateStr, &a.Zone, &a.Latitude, &a.Longitude, &a.TempMax, &a.TempMin, &a.WindMax)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if a.Date, err = parseDate(dateStr); err != nil {
		return nil, fmt.Errorf("parse date %q: %w", dateStr, err)
	}
	return &a, nil
}

// SourcesWithForecasts filters sources down to those that stored at least
// one usable metric for the target date.
func (s *Store) SourcesWithForecasts(targetDate time.Time, sources []string) ([]string, error) {
	var available []string
	for _, src := range sources {
		var count int
		err := s.db.QueryRow(`
			SELECT COUNT(1)
			FROM forecasts
			WHERE target_date = ? AND source = ?
			  AND (temp_max IS NOT NULL OR temp_min IS NOT NULL OR wind_max IS NOT NULL)
		`, models.DateOnly(targetDate), src).Scan(&count)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			available = append(available, src)
		}
	}
	return available, nil
}

// ScoringPair joins one zone's forecast (as it stood most recently before
// the cutoff run date) with the observed actual for the target date.
type ScoringPair struct {
	Source   string
	Zone     string
	Forecast models.Metrics
	Actual   models.Metrics
}

// ScoringPairs returns, per source and zone, the forecast row with the
// maximum run_date strictly before cutoff for the target date, joined to
// the actual for that date. Forecasts issued on or after the cutoff are
// never graded, so only true advance predictions count.
func (s *Store) ScoringPairs(targetDate, cutoff time.Time, sources []string) ([]ScoringPair, error) {
	if len(sources) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		WITH latest AS (
			SELECT source, zone, target_date, MAX(run_date) AS run_date
			FROM forecasts
			WHERE target_date = ?
			  AND run_date < ?
			  AND source IN (%s)
			GROUP BY source, zone, target_date
		)
		SELECT f.source, f.zone,
		       f.temp_max, f.temp_min, f.wind_max,
		       a.temp_max, a.temp_min, a.wind_max
		FROM latest l
		JOIN forecasts f
		  ON f.source = l.source
		 AND f.zone = l.zone
		 AND f.target_date = l.target_date
		 AND f.run_date = l.run_date
		JOIN actuals a
		  ON a.date = f.target_date
		 AND a.zone = f.zone
		ORDER BY f.source, f.zone
	`, placeholders(len(sources)))

	rows, err := s.db.Query(query, sourceArgs([]string{models.DateOnly(targetDate), models.DateOnly(cutoff)}, sources)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []ScoringPair
	for rows.Next() {
		var p ScoringPair
		if err := rows.Scan(&p.Source, &p.Zone,
			&p.Forecast.TempMax, &p.Forecast.TempMin, &p.Forecast.WindMax,
			&p.Actual.TempMax, &p.Actual.TempMin, &p.Actual.WindMax); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// LatestForecasts returns the most recently captured forecast per source
// per zone for the target date, keyed zone -> source.
func (s *Store) LatestForecasts(targetDate time.Time, sources []string) (map[string]map[string]models.Metrics, error) {
	if len(sources) == 0 {
		return map[string]map[string]models.Metrics{}, nil
	}

	query := fmt.Sprintf(`
		WITH latest AS (
			SELECT source, zone, target_date, MAX(run_date) AS run_date
			FROM forecasts
			WHERE target_date = ?
			  AND source IN (%s)
			GROUP BY source, zone, target_date
		)
		SELECT f.source, f.zone, f.temp_max, f.temp_min, f.wind_max
		FROM latest l
		JOIN forecasts f
		  ON f.source = l.source
		 AND f.zone = l.zone
		 AND f.target_date = l.target_date
		 AND f.run_date = l.run_date
		ORDER BY f.zone, f.source
	`, placeholders(len(sources)))

	rows, err := s.db.Query(query, sourceArgs([]string{models.DateOnly(targetDate)}, sources)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]map[string]models.Metrics)
	for rows.Next() {
		var source, zone string
		var m models.Metrics
		if err := rows.Scan(&source, &zone, &m.TempMax, &m.TempMin, &m.WindMax); err != nil {
			return nil, err
		}
		if result[zone] == nil {
			result[zone] = make(map[string]models.Metrics)
		}
		result[zone][source] = m
	}
	return result, rows.Err()
}

func (s *Store) UpsertScore(sc models.SourceScore) error {
	_, err := s.db.Exec(`
		INSERT INTO source_scores (date, source, mae_temp_max, mae_temp_min, mae_wind_max, composite_error, confidence, sample_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, source) DO UPDATE SET
			mae_temp_max = excluded.mae_temp_max,
			mae_temp_min = excluded.mae_temp_min,
			mae_wind_max = excluded.mae_wind_max,
			composite_error = excluded.composite_error,
			confidence = excluded.confidence,
			sample_count = excluded.sample_count
	`, models.DateOnly(sc.Date), sc.Source, sc.MAETempMax, sc.MAETempMin, sc.MAEWindMax,
		sc.CompositeError, sc.Confidence, sc.SampleCount)
	return err
}

func (s *Store) GetScore(date time.Time, source string) (*models.SourceScore, error) {
	row := s.db.QueryRow(`
		SELECT date, source, mae_temp_max, mae_temp_min, mae_wind_max, composite_error, confidence, sample_count
		FROM source_scores WHERE date = ? AND source = ?
	`, models.DateOnly(date), source)

	var sc models.SourceScore
	var dateStr string
	err := row.Scan(&dateStr, &sc.Source, &sc.MAETempMax, &sc.MAETempMin, &sc.MAEWindMax,
		&sc.CompositeError, &sc.Confidence, &sc.SampleCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sc.Date, err = parseDate(dateStr); err != nil {
		return nil, fmt.Errorf("parse date %q: %w", dateStr, err)
	}
	return &sc, nil
}

// ScoresOnOrBefore returns score rows for the given sources at or before
// the as-of date, most recent first. Callers cap the per-source window.
func (s *Store) ScoresOnOrBefore(asOf time.Time, sources []string) ([]models.SourceScore, error) {
	if len(sources) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT date, source, mae_temp_max, mae_temp_min, mae_wind_max, composite_error, confidence, sample_count
		FROM source_scores
		WHERE date <= ? AND source IN (%s)
		ORDER BY date DESC
	`, placeholders(len(sources)))

	rows, err := s.db.Query(query, sourceArgs([]string{models.DateOnly(asOf)}, sources)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []models.SourceScore
	for rows.Next() {
		var sc models.SourceScore
		var dateStr string
		if err := rows.Scan(&dateStr, &sc.Source, &sc.MAETempMax, &sc.MAETempMin, &sc.MAEWindMax,
			&sc.CompositeError, &sc.Confidence, &sc.SampleCount); err != nil {
			return nil, err
		}
		if sc.Date, err = parseDate(dateStr); err != nil {
			return nil, fmt.Errorf("parse date %q: %w", dateStr, err)
		}
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

func (s *Store) UpsertWeight(w models.SourceWeight) error {
	_, err := s.db.Exec(`
		INSERT INTO source_weights (date, source, weight, rolling_confidence, lookback_days)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date, source) DO UPDATE SET
			weight = excluded.weight,
			rolling_confidence = excluded.rolling_confidence,
			lookback_days = excluded.lookback_days
	`, models.DateOnly(w.Date), w.Source, w.Weight, w.RollingConfidence, w.LookbackDays)
	return err
}

func (s *Store) GetWeights(date time.Time) ([]models.SourceWeight, error) {
	rows, err := s.db.Query(`
		SELECT date, source, weight, rolling_confidence, lookback_days
		FROM source_weights WHERE date = ? ORDER BY source
	`, models.DateOnly(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var weights []models.SourceWeight
	for rows.Next() {
		var w models.SourceWeight
		var dateStr string
		if err := rows.Scan(&dateStr, &w.Source, &w.Weight, &w.RollingConfidence, &w.LookbackDays); err != nil {
			return nil, err
		}
		if w.Date, err = parseDate(dateStr); err != nil {
			return nil, fmt.Errorf("parse date %q: %w", dateStr, err)
		}
		weights = append(weights, w)
	}
	return weights, rows.Err()
}
