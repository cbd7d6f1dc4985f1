package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestOpenWeatherOneCall(t *testing.T) {
	target := mustDay(t, "2026-03-02")
	dt := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC).Unix()

	oneCall := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("exclude"); got != "minutely,hourly,alerts" {
			t.Errorf("exclude param = %q", got)
		}
		w.Write([]byte(`{
			"daily": [
				{"dt": ` + itoa(dt) + `, "temp": {"max": 7.5, "min": -0.5}, "wind_speed": 10.0}
			]
		}`))
	}))
	defer oneCall.Close()

	notes := NewNotes()
	s := NewOpenWeather(oneCall.Client(), "key", "onecall3", notes)
	s.oneCallBase = oneCall.URL

	m, err := s.Fetch(context.Background(), testZone, target)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !m.TempMax.Valid || m.TempMax.Float64 != 7.5 {
		t.Errorf("temp_max = %+v, want 7.5", m.TempMax)
	}
	if !m.WindMax.Valid || !almostEqual(m.WindMax.Float64, 36.0) {
		t.Errorf("wind_max = %+v, want 36.0", m.WindMax)
	}
	if notes.Has(KeyOpenWeather) {
		t.Errorf("unexpected note: %q", notes.Get(KeyOpenWeather))
	}
}

func TestOpenWeatherOneCallSubscriptionFallback(t *testing.T) {
	target := mustDay(t, "2026-03-02")
	dt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC).Unix()

	oneCall := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "One Call 3.0 requires a separate subscription"}`))
	}))
	defer oneCall.Close()

	forecast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"list": [
				{"dt": ` + itoa(dt) + `, "main": {"temp": 5.0}, "wind": {"speed": 6.0}},
				{"dt": ` + itoa(dt+10800) + `, "main": {"temp": 8.0}, "wind": {"speed": 4.0}}
			]
		}`))
	}))
	defer forecast.Close()

	notes := NewNotes()
	s := NewOpenWeather(oneCall.Client(), "key", "auto", notes)
	s.oneCallBase = oneCall.URL
	s.forecastBase = forecast.URL

	m, err := s.Fetch(context.Background(), testZone, target)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !m.TempMax.Valid || m.TempMax.Float64 != 8.0 {
		t.Errorf("temp_max = %+v, want 8.0 from fallback endpoint", m.TempMax)
	}
	if !m.TempMin.Valid || m.TempMin.Float64 != 5.0 {
		t.Errorf("temp_min = %+v, want 5.0", m.TempMin)
	}
	if !m.WindMax.Valid || !almostEqual(m.WindMax.Float64, 21.6) {
		t.Errorf("wind_max = %+v, want 21.6", m.WindMax)
	}
	if got := notes.Get(KeyOpenWeather); got != "One Call 3.0 subscription not enabled" {
		t.Errorf("note = %q", got)
	}
}

func TestOpenWeatherUnconfigured(t *testing.T) {
	notes := NewNotes()
	s := NewOpenWeather(http.DefaultClient, "", "auto", notes)

	m, err := s.Fetch(context.Background(), testZone, mustDay(t, "2026-03-02"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if m.HasAny() || notes.Has(KeyOpenWeather) {
		t.Error("unconfigured source should return empty metrics silently")
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
