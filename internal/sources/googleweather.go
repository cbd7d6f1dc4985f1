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

const googleWeatherBase = "https://weather.googleapis.com/v1/forecast/days:lookup"

// GoogleWeatherConfig holds the auth and localisation settings for the
// Google Weather daily forecast API. The API increasingly requires an
// OAuth2 bearer token; plain API keys still work on some projects.
type GoogleWeatherConfig struct {
	APIKey       string
	AccessToken  string
	UnitsSystem  string
	LanguageCode string
	QuotaProject string
}

type GoogleWeather struct {
	baseURL string
	cfg     GoogleWeatherConfig
	client  *apiClient
	notes   *Notes
}

func NewGoogleWeather(client *http.Client, cfg GoogleWeatherConfig, notes *Notes) *GoogleWeather {
	if cfg.UnitsSystem == "" {
		cfg.UnitsSystem = "METRIC"
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-GB"
	}
	return &GoogleWeather{
		baseURL: googleWeatherBase,
		cfg:     cfg,
		client:  newAPIClient(KeyGoogle, client),
		notes:   notes,
	}
}

func (s *GoogleWeather) Key() string { return KeyGoogle }

// Configured reports whether any credential is present.
func (s *GoogleWeather) Configured() bool {
	return s.cfg.APIKey != "" || s.cfg.AccessToken != ""
}

type googleTemperature struct {
	Degrees *float64 `json:"degrees"`
	Value   *float64 `json:"value"`
	Unit    string   `json:"unit"`
}

func (t *googleTemperature) celsius() *float64 {
	if t == nil {
		return nil
	}
	v := t.Degrees
	if v == nil {
		v = t.Value
	}
	if v == nil {
		return nil
	}
	out := *v
	if strings.Contains(strings.ToUpper(t.Unit), "FAHRENHEIT") {
		out = FahrenheitToCelsius(out)
	}
	return &out
}

type googleSpeed struct {
	Value *float64 `json:"value"`
	Unit  string   `json:"unit"`
}

func (sp *googleSpeed) kmh() *float64 {
	if sp == nil || sp.Value == nil {
		return nil
	}
	v := *sp.Value
	unit := strings.ToUpper(sp.Unit)
	switch {
	case strings.Contains(unit, "MILES_PER_HOUR"):
		v = MphToKmh(v)
	case strings.Contains(unit, "METERS_PER_SECOND"):
		v = MpsToKmh(v)
	}
	return &v
}

type googleDaypart struct {
	Wind struct {
		Gust  *googleSpeed `json:"gust"`
		Speed *googleSpeed `json:"speed"`
	} `json:"wind"`
}

func (d *googleDaypart) windKmh() *float64 {
	if d == nil {
		return nil
	}
	var best *float64
	for _, sp := range []*googleSpeed{d.Wind.Gust, d.Wind.Speed} {
		v := sp.kmh()
		if v == nil {
			continue
		}
		if best == nil || *v > *best {
			best = v
		}
	}
	return best
}

type googleDisplayDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

func (d googleDisplayDate) iso() string {
	if d.Year == 0 || d.Month == 0 || d.Day == 0 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (s *GoogleWeather) Fetch(ctx context.Context, zone models.Zone, targetDate time.Time) (models.Metrics, error) {
	if !s.Configured() {
		return models.Metrics{}, nil
	}

	params := url.Values{}
	params.Set("location.latitude", fmt.Sprintf("%.6f", zone.Latitude))
	params.Set("location.longitude", fmt.Sprintf("%.6f", zone.Longitude))
	params.Set("days", "3")
	params.Set("pageSize", "3")
	params.Set("unitsSystem", s.cfg.UnitsSystem)
	params.Set("languageCode", s.cfg.LanguageCode)

	headers := map[string]string{"Content-Type": "application/json"}
	if s.cfg.AccessToken != "" {
		headers["Authorization"] = "Bearer " + s.cfg.AccessToken
		if s.cfg.QuotaProject != "" {
			headers["X-Goog-User-Project"] = s.cfg.QuotaProject
		}
	} else {
		params.Set("key", s.cfg.APIKey)
	}

	status, body, message, err := s.client.getJSON(ctx, s.baseURL+"?"+params.Encode(), headers)
	if err != nil {
		s.notes.Set(KeyGoogle, fmt.Sprintf("Google Weather request failed (%v)", err))
		return models.Metrics{}, nil
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		if message == "" {
			message = fmt.Sprintf("HTTP %d", status)
		}
		if strings.Contains(message, "API keys are not supported by this API") {
			message = "API key rejected; use GOOGLE_WEATHER_ACCESS_TOKEN (OAuth2 Bearer token)"
		}
		if strings.Contains(strings.ToLower(message), "requires a quota project") && s.cfg.QuotaProject == "" {
			message += "; set GOOGLE_WEATHER_QUOTA_PROJECT in env"
		}
		s.notes.Set(KeyGoogle, fmt.Sprintf("Google Weather auth failed (%s)", message))
		return models.Metrics{}, nil
	}
	if status >= 400 {
		if message == "" {
			message = "request failed"
		}
		s.notes.Set(KeyGoogle, fmt.Sprintf("Google Weather HTTP %d (%s)", status, message))
		return models.Metrics{}, nil
	}

	var payload struct {
		ForecastDays []struct {
			DisplayDate       googleDisplayDate  `json:"displayDate"`
			MaxTemperature    *googleTemperature `json:"maxTemperature"`
			MinTemperature    *googleTemperature `json:"minTemperature"`
			DaytimeForecast   *googleDaypart     `json:"daytimeForecast"`
			NighttimeForecast *googleDaypart     `json:"nighttimeForecast"`
		} `json:"forecastDays"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		s.notes.Set(KeyGoogle, "Google Weather payload unavailable")
		return models.Metrics{}, nil
	}

	day := models.DateOnly(targetDate)
	for _, fd := range payload.ForecastDays {
		if fd.DisplayDate.iso() != day {
			continue
		}

		var m models.Metrics
		m.TempMax = derefNull(fd.MaxTemperature.celsius())
		m.TempMin = derefNull(fd.MinTemperature.celsius())

		var winds []float64
		for _, part := range []*googleDaypart{fd.DaytimeForecast, fd.NighttimeForecast} {
			if w := part.windKmh(); w != nil {
				winds = append(winds, *w)
			}
		}
		m.WindMax = maxOf(winds)

		if m.HasAny() {
			return m, nil
		}
	}

	s.notes.Set(KeyGoogle, "No target-day data in Google Weather response")
	return models.Metrics{}, nil
}
