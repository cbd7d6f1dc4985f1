package sources

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/felixlee/mountainbrief/internal/models"
)

const (
	openMeteoForecastBase = "https://api.open-meteo.com/v1/forecast"
	openMeteoArchiveBase  = "https://archive-api.open-meteo.com/v1/archive"
)

// OpenMeteo needs no credentials and doubles as the source of observed
// actuals via its archive endpoint.
type OpenMeteo struct {
	forecastBase string
	archiveBase  string
	client       *apiClient
}

func NewOpenMeteo(client *http.Client) *OpenMeteo {
	return &OpenMeteo{
		forecastBase: openMeteoForecastBase,
		archiveBase:  openMeteoArchiveBase,
		client:       newAPIClient(KeyOpenMeteo, client),
	}
}

func (s *OpenMeteo) Key() string { return KeyOpenMeteo }

type openMeteoDaily struct {
	Daily struct {
		Time         []string   `json:"time"`
		TempMax      []*float64 `json:"temperature_2m_max"`
		TempMin      []*float64 `json:"temperature_2m_min"`
		WindSpeedMax []*float64 `json:"wind_speed_10m_max"`
	} `json:"daily"`
}

func (p *openMeteoDaily) metricsFor(date string) models.Metrics {
	for i, t := range p.Daily.Time {
		if t != date {
			continue
		}
		var m models.Metrics
		m.TempMax = derefNull(at(p.Daily.TempMax, i))
		m.TempMin = derefNull(at(p.Daily.TempMin, i))
		m.WindMax = derefNull(at(p.Daily.WindSpeedMax, i))
		return m
	}
	return models.Metrics{}
}

func at(vals []*float64, i int) *float64 {
	if i < 0 || i >= len(vals) {
		return nil
	}
	return vals[i]
}

func derefNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return nullFloat(*v)
}

func (s *OpenMeteo) Fetch(ctx context.Context, zone models.Zone, targetDate time.Time) (models.Metrics, error) {
	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%v", zone.Latitude))
	params.Set("longitude", fmt.Sprintf("%v", zone.Longitude))
	params.Set("daily", "temperature_2m_max,temperature_2m_min,wind_speed_10m_max")
	params.Set("forecast_days", "3")
	params.Set("timezone", "Europe/London")

	return s.fetchDaily(ctx, s.forecastBase+"?"+params.Encode(), models.DateOnly(targetDate))
}

// FetchActual reads the archive endpoint for an already-elapsed date.
func (s *OpenMeteo) FetchActual(ctx context.Context, zone models.Zone, date time.Time) (models.Metrics, error) {
	day := models.DateOnly(date)
	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%v", zone.Latitude))
	params.Set("longitude", fmt.Sprintf("%v", zone.Longitude))
	params.Set("start_date", day)
	params.Set("end_date", day)
	params.Set("daily", "temperature_2m_max,temperature_2m_min,wind_speed_10m_max")
	params.Set("timezone", "Europe/London")

	return s.fetchDaily(ctx, s.archiveBase+"?"+params.Encode(), day)
}

func (s *OpenMeteo) fetchDaily(ctx context.Context, fullURL, date string) (models.Metrics, error) {
	status, body, message, err := s.client.getJSON(ctx, fullURL, nil)
	if err != nil {
		return models.Metrics{}, err
	}
	if status >= 400 {
		return models.Metrics{}, fmt.Errorf("open-meteo HTTP %d (%s)", status, message)
	}

	var payload openMeteoDaily
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Metrics{}, fmt.Errorf("decode open-meteo payload: %w", err)
	}
	return payload.metricsFor(date), nil
}
