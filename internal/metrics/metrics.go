package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stagewatch"

// Metrics holds the Prometheus collectors updated by the aggregator and
// the sellout monitor. Collectors live on a private registry so tests can
// construct as many instances as they like without registration collisions.
type Metrics struct {
	registry *prometheus.Registry

	// SourceFetches counts fetch attempts per source, labelled by outcome
	// ("ok" or "error").
	SourceFetches *prometheus.CounterVec

	// SourceEvents counts normalized events returned per source, after
	// validation drops.
	SourceEvents *prometheus.CounterVec

	// ValidationDrops counts records a source returned but validation
	// rejected.
	ValidationDrops *prometheus.CounterVec

	// GroupsMerged counts canonical groups produced by deduplication.
	GroupsMerged prometheus.Counter

	// EventsCreated counts catalog rows inserted for never-before-seen
	// events.
	EventsCreated prometheus.Counter

	// EventsUpdated counts catalog rows refreshed for known events.
	EventsUpdated prometheus.Counter

	// Transitions counts availability status changes, labelled by the new
	// status.
	Transitions *prometheus.CounterVec

	// Alerts counts sellout monitor scans whose threshold test fired.
	Alerts prometheus.Counter

	// CycleDuration observes wall-clock seconds per fetch cycle.
	CycleDuration prometheus.Histogram
}

// New creates the collector set and registers it on a fresh private
// registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SourceFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_fetch_total",
				Help:      "Fetch attempts per source by outcome.",
			},
			[]string{"source", "outcome"},
		),
		SourceEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_events_total",
				Help:      "Normalized events returned per source.",
			},
			[]string{"source"},
		),
		ValidationDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_drops_total",
				Help:      "Records dropped by validation per source.",
			},
			[]string{"source"},
		),
		GroupsMerged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "groups_merged_total",
				Help:      "Canonical groups produced by deduplication.",
			},
		),
		EventsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_created_total",
				Help:      "Catalog events inserted.",
			},
		),
		EventsUpdated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_updated_total",
				Help:      "Catalog events updated.",
			},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Availability transitions recorded by new status.",
			},
			[]string{"status"},
		),
		Alerts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Sellout monitor scans that fired an alert.",
			},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Wall-clock duration of fetch cycles.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
	}

	m.registry.MustRegister(
		m.SourceFetches,
		m.SourceEvents,
		m.ValidationDrops,
		m.GroupsMerged,
		m.EventsCreated,
		m.EventsUpdated,
		m.Transitions,
		m.Alerts,
		m.CycleDuration,
	)

	return m
}

// Handler returns an HTTP handler serving the registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
