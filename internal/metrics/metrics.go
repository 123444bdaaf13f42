// Package metrics records job outcomes in Prometheus form.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns a private registry so repeated construction in tests and
// sweeps never collides with the default one. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	Registry *prometheus.Registry

	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

func New() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "simharness",
				Subsystem: "jobs",
				Name:      "total",
				Help:      "Total number of solver jobs by outcome",
			},
			[]string{"solver", "outcome"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "simharness",
				Subsystem: "job",
				Name:      "duration_seconds",
				Help:      "Wall-clock duration of solver jobs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 20), // 10ms to ~1.5h
			},
			[]string{"solver"},
		),
	}
	r.Registry.MustRegister(r.jobsTotal, r.jobDuration)
	return r
}

// ObserveJob counts one finished job. outcome is "succeeded" or the failure kind.
func (r *Recorder) ObserveJob(solver, outcome string, seconds float64) {
	if r == nil {
		return
	}
	r.jobsTotal.WithLabelValues(solver, outcome).Inc()
	r.jobDuration.WithLabelValues(solver).Observe(seconds)
}

// JobsTotal exposes the counter for assertions.
func (r *Recorder) JobsTotal() *prometheus.CounterVec {
	return r.jobsTotal
}

// WriteTextfile dumps the registry in text exposition format, for the node
// exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.Registry)
}
