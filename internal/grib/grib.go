// Package grib extracts point values from GRIB2 files. Decoding is
// delegated to an external tool so the rest of the pipeline only deals
// with parsed samples.
package grib

import (
	"context"
	"time"
)

// PointSample is one GRIB message evaluated at a single grid point.
type PointSample struct {
	Parameter string    // short name as reported by the decoder, e.g. TMP, UGRD, 10si
	Level     string    // e.g. "2 m above ground" or "heightAboveGround 10"
	ValidTime time.Time // UTC
	Value     float64
}

// Decoder reads every message in a GRIB2 file and returns the value
// nearest to the given coordinate.
type Decoder interface {
	PointSamples(ctx context.Context, path string, lat, lon float64) ([]PointSample, error)
}
