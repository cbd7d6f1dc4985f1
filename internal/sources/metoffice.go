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

const metOfficeBase = "https://data.hub.api.metoffice.gov.uk/sitespecific/v0/point/three-hourly"

// MetOffice reads the DataHub site-specific three-hourly endpoint.
// Parameter names vary between datasource versions, so extraction
// searches each timestep for known aliases instead of fixed fields.
type MetOffice struct {
	baseURL    string
	apiKey     string
	datasource string
	client     *apiClient
	notes      *Notes
}

func NewMetOffice(client *http.Client, apiKey, datasource string, notes *Notes) *MetOffice {
	if datasource == "" {
		datasource = "BD1"
	}
	return &MetOffice{
		baseURL:    metOfficeBase,
		apiKey:     apiKey,
		datasource: datasource,
		client:     newAPIClient(KeyMetOffice, client),
		notes:      notes,
	}
}

func (s *MetOffice) Key() string { return KeyMetOffice }

var (
	metOfficeTempAliases = []string{
		"screenTemperature",
		"airTemperature",
		"temperature",
		"temp",
		"dayMaxScreenTemperature",
		"nightMinScreenTemperature",
	}
	metOfficeWindAliases = []string{
		"windSpeed10m",
		"windSpeed",
		"max10mWindSpeed",
		"windGustSpeed10m",
		"windGustSpeed",
		"midday10MWindSpeed",
	}
)

func (s *MetOffice) Fetch(ctx context.Context, zone models.Zone, targetDate time.Time) (models.Metrics, error) {
	if s.apiKey == "" {
		return models.Metrics{}, nil
	}

	params := url.Values{}
	params.Set("datasource", s.datasource)
	params.Set("includeLocationName", "true")
	params.Set("excludeParameterMetadata", "true")
	params.Set("latitude", fmt.Sprintf("%.6f", zone.Latitude))
	params.Set("longitude", fmt.Sprintf("%.6f", zone.Longitude))

	status, body, message, err := s.client.getJSON(ctx, s.baseURL+"?"+params.Encode(), map[string]string{"apikey": s.apiKey})
	if err != nil {
		s.notes.Set(KeyMetOffice, fmt.Sprintf("Met Office request failed (%v)", err))
		return models.Metrics{}, nil
	}

	switch {
	case status == http.StatusUnauthorized:
		if message == "" {
			message = "missing/invalid apikey header"
		}
		s.notes.Set(KeyMetOffice, fmt.Sprintf("Met Office auth failed (HTTP 401: %s)", message))
		return models.Metrics{}, nil
	case status == http.StatusForbidden:
		hint := subscriptionHint(s.apiKey)
		if hint == "" {
			hint = message
			if hint == "" {
				hint = "resource forbidden"
			}
		}
		s.notes.Set(KeyMetOffice, fmt.Sprintf("Met Office auth failed (HTTP 403: %s)", hint))
		return models.Metrics{}, nil
	case status >= 400:
		if message == "" {
			message = "request failed"
		}
		s.notes.Set(KeyMetOffice, fmt.Sprintf("Met Office HTTP %d (%s)", status, message))
		return models.Metrics{}, nil
	}

	var payload struct {
		Features []struct {
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Features) == 0 {
		s.notes.Set(KeyMetOffice, "Met Office response missing features")
		return models.Metrics{}, nil
	}

	series := metOfficeTimeSeries(payload.Features[0].Properties)
	if series == nil {
		s.notes.Set(KeyMetOffice, "Met Office response missing timeSeries array")
		return models.Metrics{}, nil
	}

	var temps, windsMps []float64
	for _, raw := range series {
		var item map[string]any
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		rawTime, _ := item["time"].(string)
		ts, err := time.Parse(time.RFC3339, rawTime)
		if err != nil || !onTargetDay(ts, targetDate) {
			continue
		}

		if t, ok := pickValue(item, metOfficeTempAliases, []string{"feels", "apparent"}); ok {
			temps = append(temps, t)
		}
		if w, ok := pickValue(item, metOfficeWindAliases, []string{"direction"}); ok {
			windsMps = append(windsMps, w)
		}
	}

	var windsKmh []float64
	for _, w := range windsMps {
		windsKmh = append(windsKmh, MpsToKmh(w))
	}
	m := seriesMetrics(temps, windsKmh)
	if !m.HasAny() {
		s.notes.Set(KeyMetOffice, "No target-day Met Office metrics found in timeSeries")
	}
	return m, nil
}

func metOfficeTimeSeries(props map[string]json.RawMessage) []json.RawMessage {
	for _, key := range []string{"timeSeries", "timeseries"} {
		raw, ok := props[key]
		if !ok {
			continue
		}
		var series []json.RawMessage
		if err := json.Unmarshal(raw, &series); err == nil {
			return series
		}
	}
	return nil
}

// flattenNumeric walks arbitrary decoded JSON and yields path/value
// pairs for every numeric leaf.
func flattenNumeric(obj any, prefix string, out *[]numericLeaf) {
	switch v := obj.(type) {
	case map[string]any:
		for k, child := range v {
			next := k
			if prefix != "" {
				next = prefix + "." + k
			}
			flattenNumeric(child, next, out)
		}
	case []any:
		for i, child := range v {
			flattenNumeric(child, fmt.Sprintf("%s[%d]", prefix, i), out)
		}
	case float64:
		if prefix != "" {
			*out = append(*out, numericLeaf{path: prefix, value: v})
		}
	}
}

type numericLeaf struct {
	path  string
	value float64
}

// pickValue finds the first numeric leaf whose path contains one of the
// aliases, skipping paths matching an avoid token. Aliases are checked
// in priority order.
func pickValue(obj any, aliases, avoid []string) (float64, bool) {
	var leaves []numericLeaf
	flattenNumeric(obj, "", &leaves)
	if len(leaves) == 0 {
		return 0, false
	}

	normAvoid := make([]string, len(avoid))
	for i, a := range avoid {
		normAvoid[i] = normalizeKey(a)
	}

	for _, alias := range aliases {
		na := normalizeKey(alias)
		for _, leaf := range leaves {
			path := normalizeKey(leaf.path)
			if !strings.Contains(path, na) {
				continue
			}
			skip := false
			for _, av := range normAvoid {
				if strings.Contains(path, av) {
					skip = true
					break
				}
			}
			if skip {
				continue
			}
			return leaf.value, true
		}
	}
	return 0, false
}
