package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/felixlee/mountainbrief/internal/models"
)

var testZone = models.Zone{Name: "Glencoe", Latitude: 56.68, Longitude: -5.10}

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func TestOpenMeteoFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("daily"); got != "temperature_2m_max,temperature_2m_min,wind_speed_10m_max" {
			t.Errorf("daily param = %q", got)
		}
		w.Write([]byte(`{
			"daily": {
				"time": ["2026-03-01", "2026-03-02", "2026-03-03"],
				"temperature_2m_max": [5.1, 6.2, null],
				"temperature_2m_min": [-1.0, 0.4, 1.1],
				"wind_speed_10m_max": [30.0, 41.5, 22.0]
			}
		}`))
	}))
	defer srv.Close()

	s := NewOpenMeteo(srv.Client())
	s.forecastBase = srv.URL

	m, err := s.Fetch(context.Background(), testZone, mustDay(t, "2026-03-02"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !m.TempMax.Valid || m.TempMax.Float64 != 6.2 {
		t.Errorf("temp_max = %+v, want 6.2", m.TempMax)
	}
	if !m.TempMin.Valid || m.TempMin.Float64 != 0.4 {
		t.Errorf("temp_min = %+v, want 0.4", m.TempMin)
	}
	if !m.WindMax.Valid || m.WindMax.Float64 != 41.5 {
		t.Errorf("wind_max = %+v, want 41.5", m.WindMax)
	}
}

func TestOpenMeteoFetchNullAndMissingDay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"daily": {
				"time": ["2026-03-03"],
				"temperature_2m_max": [null],
				"temperature_2m_min": [2.0],
				"wind_speed_10m_max": [15.0]
			}
		}`))
	}))
	defer srv.Close()

	s := NewOpenMeteo(srv.Client())
	s.forecastBase = srv.URL

	m, err := s.Fetch(context.Background(), testZone, mustDay(t, "2026-03-03"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if m.TempMax.Valid {
		t.Errorf("temp_max should stay null, got %+v", m.TempMax)
	}
	if !m.TempMin.Valid || m.TempMin.Float64 != 2.0 {
		t.Errorf("temp_min = %+v, want 2.0", m.TempMin)
	}

	// A day absent from the response yields empty metrics, not an error.
	m, err = s.Fetch(context.Background(), testZone, mustDay(t, "2026-03-09"))
	if err != nil {
		t.Fatalf("fetch missing day: %v", err)
	}
	if m.HasAny() {
		t.Errorf("expected empty metrics for missing day, got %+v", m)
	}
}

func TestOpenMeteoFetchActual(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("start_date"); got != "2026-02-28" {
			t.Errorf("start_date = %q", got)
		}
		w.Write([]byte(`{
			"daily": {
				"time": ["2026-02-28"],
				"temperature_2m_max": [3.3],
				"temperature_2m_min": [-2.2],
				"wind_speed_10m_max": [55.0]
			}
		}`))
	}))
	defer srv.Close()

	s := NewOpenMeteo(srv.Client())
	s.archiveBase = srv.URL

	m, err := s.FetchActual(context.Background(), testZone, mustDay(t, "2026-02-28"))
	if err != nil {
		t.Fatalf("fetch actual: %v", err)
	}
	if !m.TempMax.Valid || m.TempMax.Float64 != 3.3 {
		t.Errorf("temp_max = %+v, want 3.3", m.TempMax)
	}
	if !m.WindMax.Valid || m.WindMax.Float64 != 55.0 {
		t.Errorf("wind_max = %+v, want 55.0", m.WindMax)
	}
}
