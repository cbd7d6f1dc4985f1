package grib

import (
	"testing"
	"time"
)

func TestParseInventory(t *testing.T) {
	out := []byte(`1:0:d=2026030100:TMP:2 m above ground:6 hour fcst:vt=2026030106:lon=354.900000,lat=56.680000,val=277.35
2:51234:d=2026030100:UGRD:10 m above ground:6 hour fcst:vt=2026030106:lon=354.900000,lat=56.680000,val=-4.2
3:98765:d=2026030100:GUST:surface:6 hour fcst:vt=2026030106:lon=354.900000,lat=56.680000,val=18.9

4:120000:d=2026030100:VGRD:10 m above ground:6 hour fcst:vt=2026030106:lon=354.900000,lat=56.680000,val=undefined
5:150000:d=2026030100:TMP:2 m above ground:9 hour fcst:vt=2026030109:lon=354.900000,lat=56.680000,val=9.999e+20
`)

	samples, err := parseInventory(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3 (undefined values skipped)", len(samples))
	}
	for _, s := range samples {
		if s.Value >= undefinedValue {
			t.Errorf("sentinel value leaked into samples: %+v", s)
		}
	}

	s := samples[0]
	if s.Parameter != "TMP" || s.Level != "2 m above ground" {
		t.Errorf("sample 0 = %q at %q, want TMP at 2 m above ground", s.Parameter, s.Level)
	}
	wantVT := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	if !s.ValidTime.Equal(wantVT) {
		t.Errorf("valid time = %v, want %v", s.ValidTime, wantVT)
	}
	if s.Value != 277.35 {
		t.Errorf("value = %v, want 277.35", s.Value)
	}

	if samples[1].Parameter != "UGRD" || samples[1].Value != -4.2 {
		t.Errorf("sample 1 = %+v, want UGRD -4.2", samples[1])
	}
}

func TestParseInventoryBadValidTime(t *testing.T) {
	out := []byte(`1:0:d=2026030100:TMP:2 m above ground:anl:vt=notatime:lon=0,lat=0,val=1.0`)
	if _, err := parseInventory(out); err == nil {
		t.Fatal("expected error for malformed valid time")
	}
}
