package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the price scraper.
type Metrics struct {
	Registry           *prometheus.Registry
	SitesTotal         *prometheus.CounterVec
	StageFailuresTotal *prometheus.CounterVec
	FetchDuration      prometheus.Histogram
	FetchErrorsTotal   *prometheus.CounterVec
	RunsTotal          prometheus.Counter
	LastRunTimestamp   prometheus.Gauge
	LastRunFailures    prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	sites := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_scraper_sites_total",
			Help: "Total sites processed by outcome.",
		},
		[]string{"outcome"},
	)
	stageFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_scraper_stage_failures_total",
			Help: "Total site failures by processing stage.",
		},
		[]string{"stage"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "price_scraper_fetch_duration_seconds",
			Help:    "HTTP latency for vendor page fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	fetchErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_scraper_fetch_errors_total",
			Help: "Total fetch errors by type.",
		},
		[]string{"error_type"},
	)
	runs := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "price_scraper_runs_total",
			Help: "Total completed scrape runs.",
		},
	)
	lastRun := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "price_scraper_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		},
	)
	lastFailures := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "price_scraper_last_run_failures",
			Help: "Number of failed sites in the last run.",
		},
	)

	registry.MustRegister(sites, stageFailures, fetchDuration, fetchErrors, runs, lastRun, lastFailures)

	return &Metrics{
		Registry:           registry,
		SitesTotal:         sites,
		StageFailuresTotal: stageFailures,
		FetchDuration:      fetchDuration,
		FetchErrorsTotal:   fetchErrors,
		RunsTotal:          runs,
		LastRunTimestamp:   lastRun,
		LastRunFailures:    lastFailures,
	}
}

// IncSite increments the site counter for an outcome label.
func (m *Metrics) IncSite(outcome string) {
	if m == nil {
		return
	}
	m.SitesTotal.WithLabelValues(outcome).Inc()
}

// IncStageFailure increments the failure counter for a stage label.
func (m *Metrics) IncStageFailure(stage string) {
	if m == nil {
		return
	}
	m.StageFailuresTotal.WithLabelValues(stage).Inc()
}

// ObserveFetch records a fetch duration.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// IncFetchError increments the fetch error counter for a type label.
func (m *Metrics) IncFetchError(errorType string) {
	if m == nil {
		return
	}
	m.FetchErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveRun records the end of a run.
func (m *Metrics) ObserveRun(finished time.Time, failures int) {
	if m == nil {
		return
	}
	m.RunsTotal.Inc()
	m.LastRunTimestamp.Set(float64(finished.Unix()))
	m.LastRunFailures.Set(float64(failures))
}
