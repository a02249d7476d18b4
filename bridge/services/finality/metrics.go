/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package finality

import (
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/metrics"
)

var (
	transitionsOpts = metrics.CounterOpts{
		Subsystem:  "finality",
		Name:       "transitions",
		Help:       "The number of status transitions",
		LabelNames: []string{"service", "status"},
	}
	failuresOpts = metrics.CounterOpts{
		Subsystem:  "finality",
		Name:       "failures",
		Help:       "The number of runs ended by an unexpected error",
		LabelNames: []string{"service"},
	}
	inFlightOpts = metrics.GaugeOpts{
		Subsystem:  "finality",
		Name:       "in_flight",
		Help:       "The number of operations being processed",
		LabelNames: []string{"service"},
	}
	stepDurationOpts = metrics.HistogramOpts{
		Subsystem:  "finality",
		Name:       "step_duration_seconds",
		Help:       "Duration of the finalization steps",
		Buckets:    []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		LabelNames: []string{"service", "step"},
	}
)

// Metrics of one finalization service
type Metrics struct {
	Transitions  metrics.Counter
	Failures     metrics.Counter
	InFlight     metrics.Gauge
	StepDuration metrics.Histogram
}

func NewMetrics(p metrics.Provider, service string) *Metrics {
	if p == nil {
		p = metrics.Disabled{}
	}
	return &Metrics{
		Transitions:  p.NewCounter(transitionsOpts).With("service", service),
		Failures:     p.NewCounter(failuresOpts).With("service", service),
		InFlight:     p.NewGauge(inFlightOpts).With("service", service),
		StepDuration: p.NewHistogram(stepDurationOpts).With("service", service),
	}
}
