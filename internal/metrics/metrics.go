// Package metrics defines the Prometheus collectors for the job pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "petsphoto"

// Collector groups the pipeline metrics. A nil *Collector records nothing.
type Collector struct {
	jobsCreated      prometheus.Counter
	jobsFinished     *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	providerFailures *prometheus.CounterVec
	reconciled       prometheus.Counter
}

// NewCollector registers the collectors on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		jobsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "Generation jobs accepted.",
		}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Generation jobs that reached a terminal status.",
		}, []string{"status", "provider"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from PROCESSING to a terminal status.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
		}, []string{"provider"}),
		providerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Generation failures by provider and failure kind.",
		}, []string{"provider", "kind"}),
		reconciled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_jobs_total",
			Help:      "Stale PROCESSING jobs failed by the reconciliation sweep.",
		}),
	}
}

func (c *Collector) JobCreated() {
	if c == nil {
		return
	}
	c.jobsCreated.Inc()
}

// JobFinished records a terminal status and, when the job ran, its duration.
func (c *Collector) JobFinished(status, provider string, elapsed time.Duration) {
	if c == nil {
		return
	}
	if provider == "" {
		provider = "unknown"
	}
	c.jobsFinished.WithLabelValues(status, provider).Inc()
	if elapsed > 0 {
		c.jobDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
}

func (c *Collector) ProviderFailure(provider, kind string) {
	if c == nil {
		return
	}
	if provider == "" {
		provider = "unknown"
	}
	if kind == "" {
		kind = "internal"
	}
	c.providerFailures.WithLabelValues(provider, kind).Inc()
}

func (c *Collector) Reconciled(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.reconciled.Add(float64(n))
}
