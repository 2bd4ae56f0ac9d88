// Package metrics holds the Prometheus collectors of the ledger service. A
// nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "carbon_ledger"

// Metrics groups every collector.
type Metrics struct {
	jobs          *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	roundTrips    *prometheus.CounterVec
	roundTripTime prometheus.Histogram
	chunksSent    prometheus.Counter
	bytesStreamed prometheus.Counter
	linksAppended *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Workflow jobs handled, by task type and outcome.",
		}, []string{"task", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Workflow job handling latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		roundTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proofing_round_trips_total",
			Help:      "Proofing round-trips, by terminal state.",
		}, []string{"state"}),
		roundTripTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proofing_round_trip_seconds",
			Help:      "Time from publish to receipt.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		chunksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifier_chunks_sent_total",
			Help:      "Receipt chunks streamed to the verifier.",
		}),
		bytesStreamed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifier_bytes_streamed_total",
			Help:      "Receipt bytes streamed to the verifier.",
		}),
		linksAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_links_appended_total",
			Help:      "TCE links appended, by operator kind.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{
		m.jobs, m.jobDuration, m.roundTrips, m.roundTripTime,
		m.chunksSent, m.bytesStreamed, m.linksAppended,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewRegistry returns a registry preloaded with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ObserveJob records one handled job.
func (m *Metrics) ObserveJob(task, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(task, outcome).Inc()
	m.jobDuration.WithLabelValues(task).Observe(d.Seconds())
}

// ObserveRoundTrip records a finished proofing round-trip.
func (m *Metrics) ObserveRoundTrip(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.roundTrips.WithLabelValues(state).Inc()
	m.roundTripTime.Observe(d.Seconds())
}

// ObserveChunk records one chunk sent to the verifier.
func (m *Metrics) ObserveChunk(size int) {
	if m == nil {
		return
	}
	m.chunksSent.Inc()
	m.bytesStreamed.Add(float64(size))
}

// ObserveLink records an appended chain link.
func (m *Metrics) ObserveLink(kind string) {
	if m == nil {
		return
	}
	m.linksAppended.WithLabelValues(kind).Inc()
}
