package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixlee/mountainbrief/internal/models"
)

const (
	openWeatherOneCallBase  = "https://api.openweathermap.org/data/3.0/onecall"
	openWeatherForecastBase = "https://api.openweathermap.org/data/2.5/forecast"
)

// OpenWeather prefers One Call 3.0 and falls back to the 2.5 forecast
// endpoint, since One Call needs a separate paid subscription. The mode
// setting pins one endpoint when auto probing is unwanted.
type OpenWeather struct {
	oneCallBase  string
	forecastBase string
	apiKey       string
	mode         string // auto, onecall3, forecast2_5
	client       *apiClient
	notes        *Notes
}

func NewOpenWeather(client *http.Client, apiKey, mode string, notes *Notes) *OpenWeather {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "auto"
	}
	return &OpenWeather{
		oneCallBase:  openWeatherOneCallBase,
		forecastBase: openWeatherForecastBase,
		apiKey:       apiKey,
		mode:         mode,
		client:       newAPIClient(KeyOpenWeather, client),
		notes:        notes,
	}
}

func (s *OpenWeather) Key() string { return KeyOpenWeather }

func (s *OpenWeather) Fetch(ctx context.Context, zone models.Zone, targetDate time.Time) (models.Metrics, error) {
	if s.apiKey == "" {
		return models.Metrics{}, nil
	}

	base := url.Values{}
	base.Set("lat", fmt.Sprintf("%.6f", zone.Latitude))
	base.Set("lon", fmt.Sprintf("%.6f", zone.Longitude))
	base.Set("appid", s.apiKey)
	base.Set("units", "metric")

	if s.mode == "auto" || s.mode == "onecall3" || s.mode == "onecall" {
		params := url.Values{}
		for k, v := range base {
			params[k] = v
		}
		params.Set("exclude", "minutely,hourly,alerts")

		status, body, message, err := s.client.getJSON(ctx, s.oneCallBase+"?"+params.Encode(), nil)
		if err == nil {
			if status == http.StatusOK {
				if m := parseOneCall(body, targetDate); m.HasAny() {
					return m, nil
				}
			}
			if status == http.StatusUnauthorized || status == http.StatusForbidden {
				if message == "" {
					message = fmt.Sprintf("HTTP %d", status)
				}
				if strings.Contains(message, "One Call 3.0 requires a separate subscription") {
					s.notes.Set(KeyOpenWeather, "One Call 3.0 subscription not enabled")
				} else {
					s.notes.Set(KeyOpenWeather, fmt.Sprintf("OpenWeather auth failed (%s)", message))
				}
			}
		}
	}

	if s.mode == "auto" || s.mode == "forecast2_5" || s.mode == "forecast" {
		status, body, message, err := s.client.getJSON(ctx, s.forecastBase+"?"+base.Encode(), nil)
		if err == nil {
			if status == http.StatusOK {
				if m := s.parseForecast25(body, targetDate); m.HasAny() {
					return m, nil
				}
			}
			if status == http.StatusUnauthorized || status == http.StatusForbidden {
				if message == "" {
					message = fmt.Sprintf("HTTP %d", status)
				}
				s.notes.Set(KeyOpenWeather, fmt.Sprintf("Forecast API auth failed (%s)", message))
			}
		}
	}

	s.notes.Set(KeyOpenWeather, "No usable OpenWeather forecast data")
	return models.Metrics{}, nil
}

func parseOneCall(body []byte, targetDate time.Time) models.Metrics {
	var payload struct {
		Daily []struct {
			Dt   int64 `json:"dt"`
			Temp struct {
				Max *float64 `json:"max"`
				Min *float64 `json:"min"`
			} `json:"temp"`
			WindSpeed *float64 `json:"wind_speed"`
		} `json:"daily"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Metrics{}
	}

	for _, day := range payload.Daily {
		if day.Dt == 0 || !onTargetDay(time.Unix(day.Dt, 0).UTC(), targetDate) {
			continue
		}
		var m models.Metrics
		m.TempMax = derefNull(day.Temp.Max)
		m.TempMin = derefNull(day.Temp.Min)
		if day.WindSpeed != nil {
			m.WindMax = nullFloat(MpsToKmh(*day.WindSpeed))
		}
		return m
	}
	return models.Metrics{}
}

func (s *OpenWeather) parseForecast25(body []byte, targetDate time.Time) models.Metrics {
	var payload struct {
		List []struct {
			Dt    int64  `json:"dt"`
			DtTxt string `json:"dt_txt"`
			Main  struct {
				Temp *float64 `json:"temp"`
			} `json:"main"`
			Wind struct {
				Speed *float64 `json:"speed"`
			} `json:"wind"`
		} `json:"list"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Metrics{}
	}

	var temps, windsKmh []float64
	for _, entry := range payload.List {
		var ts time.Time
		if entry.Dt != 0 {
			ts = time.Unix(entry.Dt, 0).UTC()
		} else if entry.DtTxt != "" {
			parsed, err := time.ParseInLocation("2006-01-02 15:04:05", entry.DtTxt, time.UTC)
			if err != nil {
				continue
			}
			ts = parsed
		} else {
			continue
		}
		if !onTargetDay(ts, targetDate) {
			continue
		}
		if entry.Main.Temp != nil {
			temps = append(temps, *entry.Main.Temp)
		}
		if entry.Wind.Speed != nil {
			windsKmh = append(windsKmh, MpsToKmh(*entry.Wind.Speed))
		}
	}
	return seriesMetrics(temps, windsKmh)
}
