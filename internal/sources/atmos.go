package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felixlee/mountainbrief/internal/grib"
	"github.com/felixlee/mountainbrief/internal/httputil"
	"github.com/felixlee/mountainbrief/internal/metrics"
	"github.com/felixlee/mountainbrief/internal/models"
)

const metOfficeAtmosBase = "https://data.hub.api.metoffice.gov.uk/atmospheric-models/1.0.0"

// AtmosConfig carries the operator settings for the atmospheric-models
// order pipeline.
type AtmosConfig struct {
	APIKey    string
	OrderID   string // optional: pin one order instead of listing /orders
	MaxFiles  int    // cap on GRIB files per run
	MaxFileMB int    // cap on a single file download
	CacheDir  string
}

// MetOfficeAtmos pulls raw GRIB2 model output from a DataHub
// atmospheric-models order. One order covers every zone, so the first
// Fetch for a target date does the full download/decode pass and the
// rest read the memo.
type MetOfficeAtmos struct {
	baseURL  string
	cfg      AtmosConfig
	zones    []models.Zone
	client   *apiClient
	download *http.Client
	decoder  grib.Decoder
	notes    *Notes

	mu   sync.Mutex
	memo map[string]map[string]models.Metrics // target date -> coord key -> metrics
}

func NewMetOfficeAtmos(client *http.Client, cfg AtmosConfig, zones []models.Zone, decoder grib.Decoder, notes *Notes) *MetOfficeAtmos {
	if cfg.MaxFiles < 1 {
		cfg.MaxFiles = 8
	}
	if cfg.MaxFileMB < 5 {
		cfg.MaxFileMB = 150
	}
	return &MetOfficeAtmos{
		baseURL:  metOfficeAtmosBase,
		cfg:      cfg,
		zones:    zones,
		client:   newAPIClient(KeyMetOfficeAtm, client),
		download: httputil.NewDownloadClient(),
		decoder:  decoder,
		notes:    notes,
		memo:     make(map[string]map[string]models.Metrics),
	}
}

func (s *MetOfficeAtmos) Key() string { return KeyMetOfficeAtm }

func coordKey(lat, lon float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lon)
}

func (s *MetOfficeAtmos) Fetch(ctx context.Context, zone models.Zone, targetDate time.Time) (models.Metrics, error) {
	if s.cfg.APIKey == "" {
		return models.Metrics{}, nil
	}

	day := models.DateOnly(targetDate)
	s.mu.Lock()
	byCoord, ok := s.memo[day]
	s.mu.Unlock()
	if !ok {
		byCoord = s.fetchTarget(ctx, targetDate)
		s.mu.Lock()
		s.memo[day] = byCoord
		s.mu.Unlock()
	}
	return byCoord[coordKey(zone.Latitude, zone.Longitude)], nil
}

// fetchTarget resolves the order, downloads the most promising files
// and decodes target-day point values for every zone.
func (s *MetOfficeAtmos) fetchTarget(ctx context.Context, targetDate time.Time) map[string]models.Metrics {
	out := make(map[string]models.Metrics)
	if !tokenHasAPIContext(s.cfg.APIKey, "/atmospheric-models/") {
		s.notes.Set(KeyMetOfficeAtm, "token is not subscribed to atmospheric-models API context")
		return out
	}

	headers := map[string]string{"apikey": s.cfg.APIKey}

	orderID := strings.ToLower(strings.TrimSpace(s.cfg.OrderID))
	if orderID == "" {
		var ok bool
		orderID, ok = s.resolveOrderID(ctx, headers)
		if !ok {
			return out
		}
	}

	files, ok := s.latestFiles(ctx, orderID, headers)
	if !ok {
		return out
	}

	selected := selectAtmosFiles(files, models.DateOnly(targetDate), s.cfg.MaxFiles)
	if len(selected) == 0 {
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric order '%s' has no candidate files for temperature/wind", orderID))
		return out
	}

	agg := newAtmosAggregate(s.zones)
	processed := 0
	for _, f := range selected {
		path, ok := s.downloadGRIB(ctx, orderID, f.FileID, headers)
		if !ok {
			continue
		}
		samples, err := s.decoderSamples(ctx, path)
		if err != nil {
			s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric GRIB parse failed for '%s' (%v)", f.FileID, err))
			continue
		}
		agg.add(samples, targetDate)
		processed++
		metrics.GRIBFilesProcessed.Inc()
	}

	out = agg.metrics()
	if len(out) == 0 {
		if processed == 0 {
			s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("No atmospheric GRIB files could be processed for order '%s'", orderID))
		} else {
			s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric GRIB files parsed but no target-day point values found for %s", models.DateOnly(targetDate)))
		}
	}
	return out
}

// decoderSamples runs the decoder once per zone and tags each sample
// set with its coordinate.
func (s *MetOfficeAtmos) decoderSamples(ctx context.Context, path string) (map[string][]grib.PointSample, error) {
	out := make(map[string][]grib.PointSample)
	for _, zone := range s.zones {
		samples, err := s.decoder.PointSamples(ctx, path, zone.Latitude, zone.Longitude)
		if err != nil {
			return nil, err
		}
		out[coordKey(zone.Latitude, zone.Longitude)] = samples
	}
	return out, nil
}

type atmosOrder struct {
	OrderID string `json:"orderId"`
}

func (s *MetOfficeAtmos) resolveOrderID(ctx context.Context, headers map[string]string) (string, bool) {
	var status int
	var body []byte
	var message string

	// Some API keys reject detail=MINIMAL; prefer FULL first.
	for _, query := range []url.Values{
		{"detail": {"FULL"}, "dataSpec": {"1.1.0"}},
		{"detail": {"FULL"}},
		{"detail": {"MINIMAL"}, "dataSpec": {"1.1.0"}},
	} {
		trialStatus, trialBody, trialMessage, err := s.client.getJSON(ctx, s.baseURL+"/orders?"+query.Encode(), headers)
		if err != nil {
			if status == 0 {
				message = err.Error()
			}
			continue
		}
		if trialStatus == http.StatusOK {
			status, body, message = trialStatus, trialBody, trialMessage
			break
		}
		if status == 0 {
			status, body, message = trialStatus, trialBody, trialMessage
		}
	}

	switch {
	case status == 0:
		if message == "" {
			message = "network error"
		}
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric Models request failed (%s)", message))
		return "", false
	case status == http.StatusUnauthorized:
		if message == "" {
			message = "missing/invalid apikey header"
		}
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric Models auth failed (HTTP 401: %s)", message))
		return "", false
	case status == http.StatusForbidden:
		if message == "" {
			message = "resource forbidden"
		}
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric Models auth failed (HTTP 403: %s)", message))
		return "", false
	case status >= 400:
		if message == "" {
			message = "request failed"
		}
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric Models HTTP %d (%s)", status, message))
		return "", false
	}

	var payload struct {
		Orders []atmosOrder `json:"orders"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Orders) == 0 {
		s.notes.Set(KeyMetOfficeAtm, "No atmospheric orders configured (create an order in Met Office Data Configuration Tool)")
		return "", false
	}

	var ids []string
	for _, o := range payload.Orders {
		id := strings.ToLower(strings.TrimSpace(o.OrderID))
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		s.notes.Set(KeyMetOfficeAtm, "No atmospheric orders configured (create an order in Met Office Data Configuration Tool)")
		return "", false
	}
	if len(ids) > 1 {
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Multiple atmospheric orders found; using first '%s' (set METOFFICE_ATMOS_ORDER_ID to pin one)", ids[0]))
	}
	return ids[0], true
}

type atmosFile struct {
	FileID      string   `json:"fileId"`
	RunDateTime string   `json:"runDateTime"`
	Parameters  []string `json:"parameters"`
	Timesteps   []any    `json:"timesteps"`
}

func (s *MetOfficeAtmos) latestFiles(ctx context.Context, orderID string, headers map[string]string) ([]atmosFile, bool) {
	query := url.Values{"detail": {"FULL"}, "dataSpec": {"1.1.0"}}
	latestURL := fmt.Sprintf("%s/orders/%s/latest?%s", s.baseURL, url.PathEscape(orderID), query.Encode())

	status, body, message, err := s.client.getJSON(ctx, latestURL, headers)
	if err != nil {
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric latest-file request failed (%v)", err))
		return nil, false
	}
	switch {
	case status == http.StatusUnauthorized:
		if message == "" {
			message = "invalid credentials for this order"
		}
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric latest-file auth failed (HTTP 401: %s)", message))
		return nil, false
	case status == http.StatusNotFound:
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric order '%s' not found or not ready yet (HTTP 404; check order status is Complete)", orderID))
		return nil, false
	case status >= 400:
		if message == "" {
			message = "request failed"
		}
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric latest-file HTTP %d (%s)", status, message))
		return nil, false
	}

	var payload struct {
		OrderDetails struct {
			Files []atmosFile `json:"files"`
		} `json:"orderDetails"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.OrderDetails.Files) == 0 {
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric order '%s' returned no latest files", orderID))
		return nil, false
	}
	return payload.OrderDetails.Files, true
}

// atmosFileScore ranks a file by how likely it is to contain target-day
// surface temperature and wind fields.
func atmosFileScore(f atmosFile, targetDate string) int {
	score := 0
	merged := ""
	for _, p := range f.Parameters {
		merged += " " + normalizeKey(p)
	}
	for _, token := range []string{"temperature", "2metretemperature", "2t", "t2m"} {
		if strings.Contains(merged, token) {
			score += 3
			break
		}
	}
	for _, token := range []string{"windspeed", "10metrewindspeed", "10u", "ucomponentofwind", "10v", "vcomponentofwind"} {
		if strings.Contains(merged, token) {
			score += 3
			break
		}
	}

	var tsText strings.Builder
	for _, t := range f.Timesteps {
		fmt.Fprintf(&tsText, "%v ", t)
	}
	if strings.Contains(tsText.String(), strings.ReplaceAll(targetDate, "-", "")) {
		score++
	}
	return score
}

func selectAtmosFiles(files []atmosFile, targetDate string, maxFiles int) []atmosFile {
	type scored struct {
		score int
		run   string
		file  atmosFile
	}
	var candidates []scored
	for _, f := range files {
		if strings.TrimSpace(f.FileID) == "" {
			continue
		}
		candidates = append(candidates, scored{atmosFileScore(f, targetDate), f.RunDateTime, f})
	}
	if len(candidates) == 0 {
		return nil
	}

	anyPositive := false
	for _, c := range candidates {
		if c.score > 0 {
			anyPositive = true
			break
		}
	}
	if anyPositive {
		kept := candidates[:0]
		for _, c := range candidates {
			if c.score > 0 {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].run > candidates[j].run
	})

	if len(candidates) > maxFiles {
		candidates = candidates[:maxFiles]
	}
	out := make([]atmosFile, len(candidates))
	for i, c := range candidates {
		out[i] = c.file
	}
	return out
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeFilename(s string) string {
	cleaned := strings.Trim(unsafeFilename.ReplaceAllString(s, "_"), "._")
	if cleaned == "" {
		return "file"
	}
	if len(cleaned) > 140 {
		cleaned = cleaned[:140]
	}
	return cleaned
}

// downloadGRIB streams one order file into the cache with a hard size
// cap, aborting mid-stream if the cap is exceeded.
func (s *MetOfficeAtmos) downloadGRIB(ctx context.Context, orderID, fileID string, headers map[string]string) (string, bool) {
	if err := os.MkdirAll(s.cfg.CacheDir, 0o755); err != nil {
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric GRIB cache dir unavailable (%v)", err))
		return "", false
	}

	outPath := filepath.Join(s.cfg.CacheDir, fmt.Sprintf("%s_%s.grib2", sanitizeFilename(orderID), sanitizeFilename(fileID)))
	if info, err := os.Stat(outPath); err == nil && info.Size() > 0 {
		return outPath, true
	}

	dataURL := fmt.Sprintf("%s/orders/%s/latest/%s/data", s.baseURL, url.PathEscape(orderID), url.PathEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dataURL, nil)
	if err != nil {
		return "", false
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/x-grib")

	resp, err := s.download.Do(req)
	if err != nil {
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric GRIB download request failed for file '%s' (%v)", fileID, err))
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric GRIB download failed for file '%s' (HTTP %d)", fileID, resp.StatusCode))
		return "", false
	}

	maxBytes := int64(s.cfg.MaxFileMB) * 1024 * 1024
	if resp.ContentLength > maxBytes {
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric GRIB file '%s' too large (%dMB > %dMB limit)",
			fileID, resp.ContentLength/(1024*1024), s.cfg.MaxFileMB))
		return "", false
	}

	tmpPath := outPath + ".part"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", false
	}

	written, err := io.Copy(f, io.LimitReader(resp.Body, maxBytes+1))
	closeErr := f.Close()
	if err != nil || closeErr != nil {
		os.Remove(tmpPath)
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric GRIB download request failed for file '%s' (%v)", fileID, err))
		return "", false
	}
	if written > maxBytes {
		os.Remove(tmpPath)
		s.notes.Set(KeyMetOfficeAtm, fmt.Sprintf("Atmospheric GRIB stream exceeded %dMB limit; skipped '%s'", s.cfg.MaxFileMB, fileID))
		return "", false
	}
	if written == 0 {
		os.Remove(tmpPath)
		return "", false
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return "", false
	}
	return outPath, true
}

// atmosAggregate folds decoded samples into per-zone temperature and
// wind series. U/V components pair by exact valid time before feeding
// the wind series.
type atmosAggregate struct {
	temps map[string][]float64
	winds map[string][]float64
	uv    map[string]map[time.Time]map[string]float64
}

func newAtmosAggregate(zones []models.Zone) *atmosAggregate {
	a := &atmosAggregate{
		temps: make(map[string][]float64),
		winds: make(map[string][]float64),
		uv:    make(map[string]map[time.Time]map[string]float64),
	}
	for _, z := range zones {
		key := coordKey(z.Latitude, z.Longitude)
		a.temps[key] = nil
		a.winds[key] = nil
	}
	return a
}

// classifyAtmosSample maps a decoded message onto one of the tracked
// categories. Both eccodes-style (2t, 10si, 10u) and wgrib2-style
// (TMP, WIND, UGRD) names appear depending on the decoder.
func classifyAtmosSample(s grib.PointSample) string {
	param := normalizeKey(s.Parameter)
	level := normalizeKey(s.Level)

	if strings.Contains(param, "gust") {
		return ""
	}

	is2m := strings.Contains(level, "2maboveground") || strings.Contains(level, "heightaboveground2") ||
		param == "2t" || param == "t2m"
	is10m := strings.Contains(level, "10maboveground") || strings.Contains(level, "heightaboveground10") ||
		param == "10u" || param == "u10" || param == "10v" || param == "v10" || param == "10si" || param == "si10"

	switch {
	case is2m && (param == "tmp" || param == "2t" || param == "t2m" || strings.Contains(param, "temperature")):
		return "temp"
	case is10m && (param == "wind" || param == "10si" || param == "si10" || param == "10ws" || param == "ws10" || strings.Contains(param, "windspeed")):
		return "wind"
	case is10m && (param == "ugrd" || param == "10u" || param == "u10" || strings.Contains(param, "ucomponentofwind")):
		return "u"
	case is10m && (param == "vgrd" || param == "10v" || param == "v10" || strings.Contains(param, "vcomponentofwind")):
		return "v"
	}
	return ""
}

func (a *atmosAggregate) add(byCoord map[string][]grib.PointSample, targetDate time.Time) {
	for coord, samples := range byCoord {
		for _, s := range samples {
			if !onTargetDay(s.ValidTime, targetDate) {
				continue
			}
			switch classifyAtmosSample(s) {
			case "temp":
				a.temps[coord] = append(a.temps[coord], TemperatureToCelsius(s.Value, ""))
			case "wind":
				a.winds[coord] = append(a.winds[coord], MpsToKmh(s.Value))
			case "u":
				a.addComponent(coord, s.ValidTime, "u", s.Value)
			case "v":
				a.addComponent(coord, s.ValidTime, "v", s.Value)
			}
		}
	}
}

func (a *atmosAggregate) addComponent(coord string, ts time.Time, comp string, v float64) {
	if a.uv[coord] == nil {
		a.uv[coord] = make(map[time.Time]map[string]float64)
	}
	if a.uv[coord][ts] == nil {
		a.uv[coord][ts] = make(map[string]float64)
	}
	a.uv[coord][ts][comp] = v
}

func (a *atmosAggregate) metrics() map[string]models.Metrics {
	for coord, byTS := range a.uv {
		for _, comps := range byTS {
			u, uOK := comps["u"]
			v, vOK := comps["v"]
			if uOK && vOK {
				a.winds[coord] = append(a.winds[coord], MpsToKmh(math.Hypot(u, v)))
			}
		}
	}

	out := make(map[string]models.Metrics)
	for coord := range a.temps {
		temps := a.temps[coord]
		winds := a.winds[coord]
		if len(temps) == 0 && len(winds) == 0 {
			continue
		}
		out[coord] = seriesMetrics(temps, winds)
	}
	return out
}
