package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	SourceAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mountainbrief_source_api_calls_total",
			Help: "Total forecast provider API calls",
		},
		[]string{"source", "status"},
	)

	SourceAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mountainbrief_source_api_latency_seconds",
			Help:    "Provider API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	ForecastsCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mountainbrief_forecasts_captured_total",
			Help: "Total forecast rows successfully captured",
		},
		[]string{"source"},
	)

	ActualsCaptured = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mountainbrief_actuals_captured_total",
			Help: "Total actual observation rows captured",
		},
	)

	SourcesScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mountainbrief_sources_scored_total",
			Help: "Total per-source benchmark rows written",
		},
		[]string{"source"},
	)

	GRIBFilesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mountainbrief_grib_files_processed_total",
			Help: "Total atmospheric GRIB files downloaded and decoded",
		},
	)
)

// Push sends the default registry to a Pushgateway. The run is a short
// batch job, so scraping is not an option.
func Push(gatewayURL string) error {
	return push.New(gatewayURL, "mountainbrief").
		Gatherer(prometheus.DefaultGatherer).
		Push()
}
