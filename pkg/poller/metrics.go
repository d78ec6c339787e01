// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

// Metrics counts check outcomes and condition evaluations.
// A nil *Metrics records nothing.
type Metrics struct {
	checks      *prometheus.CounterVec
	evaluations *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "primaza_reconciliation_check_total",
			Help: "Number of completed reconciliation checks by outcome",
		}, []string{"check", "outcome"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "primaza_reconciliation_check_evaluations_total",
			Help: "Number of condition evaluations performed by reconciliation checks",
		}, []string{"check"}),
	}
}

func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.checks, m.evaluations} {
		err := registry.Register(c)
		if err != nil {
			return err
		}
	}
	return nil
}

// RegisterWithControllerRuntime exposes m on the controller-runtime registry.
func (m *Metrics) RegisterWithControllerRuntime() error {
	return m.Register(ctrlmetrics.Registry)
}

func (m *Metrics) Checks() *prometheus.CounterVec { return m.checks }

func (m *Metrics) Evaluations() *prometheus.CounterVec { return m.evaluations }

func (m *Metrics) observeEvaluation(check string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(check).Inc()
}

func (m *Metrics) observeOutcome(check string, outcome ConditionType) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(check, string(outcome)).Inc()
}
