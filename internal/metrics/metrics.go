// Package metrics exposes Prometheus counters for the scheduler. Counters
// are fed from the lifecycle event bus so the core never calls Prometheus
// directly.
package metrics

import (
	"context"

	"github.com/FiditeNemini/artcraft-sub020/internal/event"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	JobsClaimed  *prometheus.CounterVec
	JobsOutcomes *prometheus.CounterVec
	JobsSkipped  *prometheus.CounterVec
	JobsReaped   *prometheus.CounterVec
	GPUHealthy   prometheus.Gauge
}

// New registers the scheduler metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsClaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artcraft_jobs_claimed_total",
			Help: "Jobs claimed by this worker, by job type.",
		}, []string{"job_type"}),
		JobsOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artcraft_job_outcomes_total",
			Help: "Recorded job outcomes, by job type and outcome.",
		}, []string{"job_type", "outcome"}),
		JobsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artcraft_jobs_skipped_total",
			Help: "Claimed jobs released without consuming an attempt, by skip kind.",
		}, []string{"job_type", "skip"}),
		JobsReaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artcraft_jobs_reaped_total",
			Help: "Stale started jobs recovered by the reaper, by disposition.",
		}, []string{"disposition"}),
		GPUHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "artcraft_gpu_healthy",
			Help: "1 when the most recent GPU health probe passed.",
		}),
	}
	reg.MustRegister(m.JobsClaimed, m.JobsOutcomes, m.JobsSkipped, m.JobsReaped, m.GPUHealthy)
	return m
}

// SubscribeBus wires the metrics to lifecycle events.
func (m *Metrics) SubscribeBus(bus *event.Bus) {
	bus.Subscribe(event.JobClaimed, func(_ context.Context, e event.Event) {
		if p, ok := e.Payload.(event.JobEvent); ok {
			m.JobsClaimed.WithLabelValues(p.JobType).Inc()
		}
	})
	bus.Subscribe(event.JobSucceeded, func(_ context.Context, e event.Event) {
		if p, ok := e.Payload.(event.JobEvent); ok {
			m.JobsOutcomes.WithLabelValues(p.JobType, "success").Inc()
		}
	})
	bus.Subscribe(event.JobFailed, func(_ context.Context, e event.Event) {
		if p, ok := e.Payload.(event.JobEvent); ok {
			outcome := "failure_terminal"
			if p.Recoverable {
				outcome = "failure_retryable"
			}
			m.JobsOutcomes.WithLabelValues(p.JobType, outcome).Inc()
		}
	})
	bus.Subscribe(event.JobSkipped, func(_ context.Context, e event.Event) {
		if p, ok := e.Payload.(event.JobEvent); ok {
			m.JobsSkipped.WithLabelValues(p.JobType, p.SkipKind).Inc()
		}
	})
	bus.Subscribe(event.JobsReaped, func(_ context.Context, e event.Event) {
		if p, ok := e.Payload.(event.ReapEvent); ok {
			m.JobsReaped.WithLabelValues("requeued").Add(float64(p.Requeued))
			m.JobsReaped.WithLabelValues("dead_lettered").Add(float64(p.DeadLettered))
		}
	})
}
