// Package sources holds one adapter per upstream forecast provider.
// Every adapter maps its provider payload to the shared daily metrics:
// max/min temperature in Celsius and max wind in km/h.
package sources

import (
	"context"
	"time"

	"github.com/felixlee/mountainbrief/internal/models"
)

// London is the reporting timezone. All providers return timestamps in
// UTC or local offsets; day boundaries are drawn in UK local time.
var London = mustLoadLocation("Europe/London")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// onTargetDay reports whether a timestamp falls on the target calendar
// day in UK local time.
func onTargetDay(ts, targetDate time.Time) bool {
	return ts.In(London).Format("2006-01-02") == models.DateOnly(targetDate)
}

// Stable keys used in the database. Renaming one would orphan its
// accuracy history.
const (
	KeyOpenMeteo    = "open_meteo"
	KeyMetNo        = "met_no"
	KeyMetOffice    = "met_office"
	KeyMetOfficeAtm = "met_office_atmospheric"
	KeyOpenWeather  = "openweather"
	KeyGoogle       = "google_weather"
)

var labels = map[string]string{
	KeyOpenMeteo:    "Open-Meteo",
	KeyMetNo:        "MET Norway",
	KeyMetOffice:    "UK Met Office",
	KeyMetOfficeAtm: "UK Met Office (Atmospheric Models)",
	KeyOpenWeather:  "OpenWeather",
	KeyGoogle:       "Google Weather",
}

// Label returns the human-readable name for a source key.
func Label(key string) string {
	if l, ok := labels[key]; ok {
		return l
	}
	return key
}

// Source fetches one zone's daily forecast for a target date. Partial
// metrics are normal; an adapter that cannot reach its provider records
// a note and returns empty metrics rather than failing the run.
type Source interface {
	Key() string
	Fetch(ctx context.Context, zone models.Zone, targetDate time.Time) (models.Metrics, error)
}

// CredentialHint maps an unconfigured source key to the setting the
// operator needs to provide.
func CredentialHint(key string) string {
	switch key {
	case KeyMetOffice:
		return "METOFFICE_API_KEY"
	case KeyMetOfficeAtm:
		return "METOFFICE_ATMOS_API_KEY"
	case KeyOpenWeather:
		return "OPENWEATHER_API_KEY"
	case KeyGoogle:
		return "GOOGLE_WEATHER_ACCESS_TOKEN"
	}
	return "API_KEY"
}
