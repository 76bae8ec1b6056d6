// Package metrics counts what the recording engine does.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's collectors. Each Metrics registers its own
// collectors, so engines that share a registerer must not coexist.
type Metrics struct {
	// EventsRecorded counts events appended to tracers, by event kind.
	EventsRecorded *prometheus.CounterVec

	// StackAnomalies counts call stack anomalies, by anomaly kind.
	StackAnomalies *prometheus.CounterVec

	// SerializationAnomalies counts values that failed to introspect.
	SerializationAnomalies prometheus.Counter

	// DispatchPanics counts internal failures recovered during dispatch.
	DispatchPanics prometheus.Counter

	// TracersEnabled is the number of enabled tracers.
	TracersEnabled prometheus.Gauge
}

// New registers the collectors on reg. A nil reg leaves the collectors
// unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appmap_events_recorded_total",
				Help: "Total number of events appended to tracers",
			},
			[]string{"kind"},
		),
		StackAnomalies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appmap_stack_anomalies_total",
				Help: "Total number of call stack anomalies",
			},
			[]string{"kind"},
		),
		SerializationAnomalies: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "appmap_serialization_anomalies_total",
				Help: "Total number of values that could not be described",
			},
		),
		DispatchPanics: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "appmap_dispatch_panics_total",
				Help: "Total number of recovered dispatch failures",
			},
		),
		TracersEnabled: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "appmap_tracers_enabled",
				Help: "Number of enabled tracers",
			},
		),
	}
}

// Discard returns collectors that are not registered anywhere.
func Discard() *Metrics {
	return New(nil)
}
