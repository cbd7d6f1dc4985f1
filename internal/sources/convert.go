package sources

import (
	"regexp"
	"strings"
)

func MpsToKmh(v float64) float64 {
	return v * 3.6
}

func MphToKmh(v float64) float64 {
	return v * 1.60934
}

func KmhToMph(v float64) float64 {
	return v / 1.60934
}

func FahrenheitToCelsius(v float64) float64 {
	return (v - 32.0) * 5.0 / 9.0
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

// normalizeKey lowercases and strips separators so unit and parameter
// strings from different providers compare cleanly.
func normalizeKey(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

// TemperatureToCelsius converts a temperature with a free-form unit
// string. Values above 170 with no recognised unit are assumed Kelvin,
// which no surface temperature in Celsius ever reaches.
func TemperatureToCelsius(v float64, units string) float64 {
	switch normalizeKey(units) {
	case "k", "kelvin":
		return v - 273.15
	case "f", "fahrenheit", "degf":
		return FahrenheitToCelsius(v)
	}
	if v > 170.0 {
		return v - 273.15
	}
	return v
}

// WindSpeedToMps converts a wind speed with a free-form unit string.
// Unrecognised or missing units pass through as m/s.
func WindSpeedToMps(v float64, units string) float64 {
	unit := normalizeKey(units)
	switch {
	case unit == "":
		return v
	case strings.Contains(unit, "kilometreperhour") || unit == "kmh" || unit == "kph" || unit == "kmph":
		return v / 3.6
	case strings.Contains(unit, "mileperhour") || unit == "mph":
		return v / 2.2369362921
	case strings.Contains(unit, "knot") || unit == "kt" || unit == "kn":
		return v * 0.514444
	}
	return v
}
