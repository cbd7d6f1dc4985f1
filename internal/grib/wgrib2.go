package grib

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// undefinedValue is wgrib2's sentinel for grid points outside the
// defined area (printed as val=9.999e+20).
const undefinedValue = 9.998e20

// Wgrib2Decoder shells out to the wgrib2 binary. The inventory mode with
// -vt and -lon prints one line per message including the valid time and
// the value at the nearest grid point.
type Wgrib2Decoder struct {
	Binary string
}

func NewWgrib2Decoder(binary string) *Wgrib2Decoder {
	if binary == "" {
		binary = "wgrib2"
	}
	return &Wgrib2Decoder{Binary: binary}
}

func (d *Wgrib2Decoder) PointSamples(ctx context.Context, path string, lat, lon float64) ([]PointSample, error) {
	// wgrib2 wants longitudes in 0..360.
	if lon < 0 {
		lon += 360
	}

	cmd := exec.CommandContext(ctx, d.Binary, path, "-s", "-vt",
		"-lon", strconv.FormatFloat(lon, 'f', 6, 64), strconv.FormatFloat(lat, 'f', 6, 64))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("wgrib2 %s: %s", path, msg)
	}
	return parseInventory(stdout.Bytes())
}

// parseInventory reads wgrib2 inventory lines of the form
//
//	1:0:d=2026030100:TMP:2 m above ground:6 hour fcst:vt=2026030106:lon=354.9,lat=56.68,val=277.35
//
// Lines missing a parameter, valid time or value are skipped.
func parseInventory(out []byte) ([]PointSample, error) {
	var samples []PointSample
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 5 {
			continue
		}

		var s PointSample
		s.Parameter = fields[3]
		s.Level = fields[4]

		var haveVT, haveVal bool
		for _, f := range fields {
			switch {
			case strings.HasPrefix(f, "vt="):
				vt, err := time.ParseInLocation("2006010215", strings.TrimPrefix(f, "vt="), time.UTC)
				if err != nil {
					return nil, fmt.Errorf("parse valid time %q: %w", f, err)
				}
				s.ValidTime = vt
				haveVT = true
			case strings.Contains(f, "val="):
				idx := strings.Index(f, "val=")
				v, err := strconv.ParseFloat(f[idx+len("val="):], 64)
				if err != nil || v >= undefinedValue {
					// Undefined grid points print val=9.999e+20
					// or non-numeric text; skip the message.
					continue
				}
				s.Value = v
				haveVal = true
			}
		}
		if s.Parameter != "" && haveVT && haveVal {
			samples = append(samples, s)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}
