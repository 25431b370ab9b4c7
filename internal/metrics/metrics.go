package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors of the retry and batch layers.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry          *prometheus.Registry
	AttemptsTotal     *prometheus.CounterVec
	RetriesTotal      *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	OutcomesTotal     *prometheus.CounterVec
	DroppedTiersTotal prometheus.Counter
	URLDuration       *prometheus.HistogramVec
	InFlight          prometheus.Gauge
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_attempts_total",
			Help: "Page operation attempts by result.",
		},
		[]string{"operation", "result"},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Retries scheduled after a failed attempt.",
		},
		[]string{"operation"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Failed attempts by error type.",
		},
		[]string{"operation", "error_type"},
	)
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_outcomes_total",
			Help: "Per-URL outcomes by status.",
		},
		[]string{"operation", "status"},
	)
	droppedTiers := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_dropped_tiers_total",
			Help: "Wholesale tiers skipped because their price was missing.",
		},
	)
	urlDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_url_duration_seconds",
			Help:    "Time spent on one URL across all attempts.",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120},
		},
		[]string{"operation"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_urls_in_flight",
			Help: "URLs currently held by a worker.",
		},
	)

	registry.MustRegister(attempts, retries, errorsTotal, outcomes, droppedTiers, urlDuration, inFlight)

	return &Metrics{
		Registry:          registry,
		AttemptsTotal:     attempts,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
		OutcomesTotal:     outcomes,
		DroppedTiersTotal: droppedTiers,
		URLDuration:       urlDuration,
		InFlight:          inFlight,
	}
}

func (m *Metrics) IncAttempt(operation string, ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.AttemptsTotal.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) IncRetry(operation string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncError(operation, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

func (m *Metrics) IncOutcome(operation, status string) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) IncDroppedTier() {
	if m == nil {
		return
	}
	m.DroppedTiersTotal.Inc()
}

func (m *Metrics) ObserveURL(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.URLDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// TrackInFlight bumps the in-flight gauge and returns the matching release.
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}
