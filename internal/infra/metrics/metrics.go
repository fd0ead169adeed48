// Package metrics exposes controller counters in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moodbox"

// Recorder records controller metrics into its own registry.
type Recorder struct {
	registry *prometheus.Registry

	refinements    *prometheus.CounterVec
	appended       *prometheus.CounterVec
	metadata       *prometheus.CounterVec
	autoAdvances   prometheus.Counter
	engineFailures *prometheus.CounterVec
	queueLength    prometheus.Gauge
	inFlight       prometheus.Gauge
}

// New creates a recorder with a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		refinements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refinements_total",
				Help:      "Total number of finished refinement requests",
			},
			[]string{"intent", "status"},
		),
		appended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "appended_tracks_total",
				Help:      "Total number of track identifiers appended to the queue",
			},
			[]string{"intent"},
		),
		metadata: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metadata_resolutions_total",
				Help:      "Total number of track metadata resolutions",
			},
			[]string{"status"},
		),
		autoAdvances: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auto_advances_total",
				Help:      "Total number of automatic advances at the end of a track",
			},
		),
		engineFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_command_failures_total",
				Help:      "Total number of failed playback engine commands",
			},
			[]string{"command"},
		),
		queueLength: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_length",
				Help:      "Current number of slots in the queue",
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "refinements_in_flight",
				Help:      "Number of refinement requests awaiting a response",
			},
		),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.refinements,
		r.appended,
		r.metadata,
		r.autoAdvances,
		r.engineFailures,
		r.queueLength,
		r.inFlight,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RefinementIssued counts a refinement request that was sent.
func (r *Recorder) RefinementIssued(string) {
	r.inFlight.Inc()
}

// RefinementFinished counts a refinement response.
func (r *Recorder) RefinementFinished(intent string, count int, err error) {
	r.inFlight.Dec()
	if err != nil {
		r.refinements.WithLabelValues(intent, "error").Inc()
		return
	}
	r.refinements.WithLabelValues(intent, "ok").Inc()
	r.appended.WithLabelValues(intent).Add(float64(count))
}

// MetadataResolved counts a metadata fetch.
func (r *Recorder) MetadataResolved(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metadata.WithLabelValues(status).Inc()
}

// AutoAdvanced counts an automatic advance.
func (r *Recorder) AutoAdvanced() {
	r.autoAdvances.Inc()
}

// EngineCommandFailed counts a failed engine command.
func (r *Recorder) EngineCommandFailed(command string) {
	r.engineFailures.WithLabelValues(command).Inc()
}

// QueueLength records the queue length.
func (r *Recorder) QueueLength(n int) {
	r.queueLength.Set(float64(n))
}
