// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan pipeline metrics
var (
	// ScansTotal tracks finished scans by terminal status.
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scans_total",
			Help: "Total number of scans by terminal status",
		},
		[]string{"status", "tier"},
	)

	// ScanDuration tracks wall-clock scan duration.
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_duration_seconds",
			Help:    "Scan pipeline duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"tier"},
	)

	// ScansInProgress tracks currently running scans.
	ScansInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scans_in_progress",
			Help: "Number of scans currently in progress",
		},
	)

	// AnalyzerKillsTotal counts deadline-triggered analyzer terminations
	// by signal stage (term, kill).
	AnalyzerKillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_kills_total",
			Help: "Total analyzer processes terminated on deadline, by signal",
		},
		[]string{"signal"},
	)

	// AnalyzerEarlyResolves counts runs resolved from complete stdout
	// before process exit.
	AnalyzerEarlyResolves = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analyzer_early_resolves_total",
			Help: "Total analyzer runs resolved before process exit",
		},
	)

	// FindingsTotal counts normalized findings by severity.
	FindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findings_total",
			Help: "Total normalized findings by severity",
		},
		[]string{"severity"},
	)

	// PersistenceFallbacksTotal counts writes degraded to in-memory
	// fallback records.
	PersistenceFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persistence_fallbacks_total",
			Help: "Total persistence writes degraded to in-memory fallbacks",
		},
		[]string{"operation"},
	)

	// EnrichmentFailuresTotal counts enrichment calls degraded to the
	// empty payload.
	EnrichmentFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enrichment_failures_total",
			Help: "Total enrichment calls that degraded to an empty payload",
		},
	)

	// TempDirsSweptTotal counts orphaned work trees removed by the sweep.
	TempDirsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "temp_dirs_swept_total",
			Help: "Total orphaned scan work trees removed by the periodic sweep",
		},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal tracks HTTP requests by method, path and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
