// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package provisioning

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records convergence and attachment outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	convergences        *prometheus.CounterVec
	convergenceDuration *prometheus.HistogramVec
	polls               *prometheus.CounterVec
	retries             *prometheus.CounterVec
	submissions         *prometheus.CounterVec
	registrations       *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates the collectors on a private registry under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		convergences: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "convergences_total",
				Help:      "Convergence cycles by action and terminal status",
			},
			[]string{"action", "status"},
		),
		convergenceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "convergence_duration_seconds",
				Help:      "Wall time from submission to terminal status",
				Buckets:   []float64{1, 30, 60, 300, 600, 1200, 1800, 3600},
			},
			[]string{"action", "status"},
		),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completion_checks_total",
				Help:      "Completion checks by observed state",
			},
			[]string{"state"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "control_plane_retries_total",
				Help:      "Retried transient control plane calls",
			},
			[]string{"operation"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_source_submissions_total",
				Help:      "Log source attachments by outcome",
			},
			[]string{"source", "outcome"},
		),
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscriber_registrations_total",
				Help:      "Subscriber registrations by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.convergences,
		m.convergenceDuration,
		m.polls,
		m.retries,
		m.submissions,
		m.registrations,
	)
	return m
}

// Registry returns the registry to expose over HTTP.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) recordConvergence(action Action, status Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.convergences.WithLabelValues(string(action), string(status)).Inc()
	m.convergenceDuration.WithLabelValues(string(action), string(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) recordCheck(state CheckState) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) recordRetry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

// RecordSubmission counts one log source attachment.
func (m *Metrics) RecordSubmission(source, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(source, outcome).Inc()
}

// RecordRegistration counts one subscriber registration.
func (m *Metrics) RecordRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}
