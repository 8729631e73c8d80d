// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus collectors for extraction batches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pdiddy/brim-extract/pkg/types"
)

const namespace = "brim_extract"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the scheduler's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	TasksTotal    *prometheus.CounterVec
	TaskDuration  *prometheus.HistogramVec
	InFlight      prometheus.Gauge
	BatchesTotal  prometheus.Counter
	CacheDecision *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Extraction tasks completed, by priority and outcome.",
		}, []string{"priority", "outcome"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Extraction task execution time.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"priority"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Extraction tasks currently executing.",
		}),
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Extraction batches run.",
		}),
		CacheDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_validations_total",
			Help:      "Cache validation decisions, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.TasksTotal, m.TaskDuration, m.InFlight, m.BatchesTotal, m.CacheDecision)
	}
	return m
}

// TaskStarted marks one task as executing.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// TaskFinished records a finished task.
func (m *Metrics) TaskFinished(p types.ExtractionPriority, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailure
	}
	m.InFlight.Dec()
	m.TasksTotal.WithLabelValues(p.String(), outcome).Inc()
	m.TaskDuration.WithLabelValues(p.String()).Observe(elapsed.Seconds())
}

// BatchStarted counts one batch.
func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.BatchesTotal.Inc()
}

// CacheValidated counts one cache decision.
func (m *Metrics) CacheValidated(reason types.ValidationReason) {
	if m == nil {
		return
	}
	m.CacheDecision.WithLabelValues(string(reason)).Inc()
}
