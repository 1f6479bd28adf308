package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingest and forecast pipelines.
type Metrics struct {
	IngestCycles      *prometheus.CounterVec // labels: outcome={new,duplicate,error}
	EntriesIngested   prometheus.Counter
	EntriesDropped    prometheus.Counter
	SourceFetchErrors *prometheus.CounterVec   // labels: source={nhc,hwrf,rammb}
	SourceDuration    *prometheus.HistogramVec // labels: source
	IngestRunning     prometheus.Gauge

	// Forecast orchestration metrics.
	ForecastAttempts *prometheus.CounterVec // labels: outcome={parsed,transport,extract,decode}
	ForecastStorms   *prometheus.CounterVec // labels: outcome={success,exhausted}
	Reflections      *prometheus.CounterVec // labels: result={confirmed,revised,failed}
	ForecastDuration prometheus.Histogram
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.IngestCycles,
		m.EntriesIngested,
		m.EntriesDropped,
		m.SourceFetchErrors,
		m.SourceDuration,
		m.IngestRunning,
		m.ForecastAttempts,
		m.ForecastStorms,
		m.Reflections,
		m.ForecastDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		IngestCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cyclone_etl",
			Name:      "ingest_cycles_total",
			Help:      "Ingest cycles by outcome (new fingerprint, duplicate, error).",
		}, []string{"outcome"}),
		EntriesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cyclone_etl",
			Name:      "entries_ingested_total",
			Help:      "Canonical track entries written to the live snapshot.",
		}),
		EntriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cyclone_etl",
			Name:      "entries_dropped_total",
			Help:      "Entries dropped during canonicalization as invalid.",
		}),
		SourceFetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cyclone_etl",
			Name:      "source_fetch_errors_total",
			Help:      "Hard fetch failures per source adapter.",
		}, []string{"source"}),
		SourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cyclone_etl",
			Name:      "source_fetch_duration_seconds",
			Help:      "Per-adapter fetch and parse duration.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cyclone_etl",
			Name:      "ingest_running",
			Help:      "1 while the periodic ingest loop is active.",
		}),
		ForecastAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cyclone_etl",
			Name:      "forecast_attempts_total",
			Help:      "Model submissions by outcome (parsed, transport, extract, decode).",
		}, []string{"outcome"}),
		ForecastStorms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cyclone_etl",
			Name:      "forecast_storms_total",
			Help:      "Per-storm forecast outcomes.",
		}, []string{"outcome"}),
		Reflections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cyclone_etl",
			Name:      "reflections_total",
			Help:      "Reflection pass results (confirmed, revised, failed).",
		}, []string{"result"}),
		ForecastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cyclone_etl",
			Name:      "forecast_duration_seconds",
			Help:      "Duration of a complete per-storm forecast including reflection.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
	}
}
