package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/felixlee/mountainbrief/internal/models"
)

const (
	metNoBase      = "https://api.met.no/weatherapi/locationforecast/2.0/compact"
	metNoUserAgent = "mountainbrief/1.0 (felixlee@example.com)"
)

// MetNo uses the open locationforecast API. MET Norway requires an
// identifying User-Agent; anonymous clients get throttled.
type MetNo struct {
	baseURL string
	client  *apiClient
}

func NewMetNo(client *http.Client) *MetNo {
	return &MetNo{
		baseURL: metNoBase,
		client:  newAPIClient(KeyMetNo, client),
	}
}

func (s *MetNo) Key() string { return KeyMetNo }

type metNoPayload struct {
	Properties struct {
		Timeseries []struct {
			Time string `json:"time"`
			Data struct {
				Instant struct {
					Details struct {
						AirTemperature *float64 `json:"air_temperature"`
						WindSpeed      *float64 `json:"wind_speed"`
					} `json:"details"`
				} `json:"instant"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

func (s *MetNo) Fetch(ctx context.Context, zone models.Zone, targetDate time.Time) (models.Metrics, error) {
	url := fmt.Sprintf("%s?lat=%v&lon=%v", s.baseURL, zone.Latitude, zone.Longitude)
	status, body, message, err := s.client.getJSON(ctx, url, map[string]string{"User-Agent": metNoUserAgent})
	if err != nil {
		return models.Metrics{}, err
	}
	if status >= 400 {
		return models.Metrics{}, fmt.Errorf("met.no HTTP %d (%s)", status, message)
	}

	var payload metNoPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Metrics{}, fmt.Errorf("decode met.no payload: %w", err)
	}

	var temps, windsKmh []float64
	for _, item := range payload.Properties.Timeseries {
		ts, err := time.Parse(time.RFC3339, item.Time)
		if err != nil {
			continue
		}
		if !onTargetDay(ts, targetDate) {
			continue
		}
		details := item.Data.Instant.Details
		if details.AirTemperature != nil {
			temps = append(temps, *details.AirTemperature)
		}
		if details.WindSpeed != nil {
			windsKmh = append(windsKmh, MpsToKmh(*details.WindSpeed))
		}
	}
	return seriesMetrics(temps, windsKmh), nil
}
