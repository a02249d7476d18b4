/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metrics

type CounterOpts struct {
	Namespace  string
	Subsystem  string
	Name       string
	Help       string
	LabelNames []string
}

type GaugeOpts struct {
	Namespace  string
	Subsystem  string
	Name       string
	Help       string
	LabelNames []string
}

type HistogramOpts struct {
	Namespace  string
	Subsystem  string
	Name       string
	Help       string
	Buckets    []float64
	LabelNames []string
}

// Counter is a monotonically increasing value.
// With takes label name and value pairs and returns a counter bound to them.
type Counter interface {
	With(labelValues ...string) Counter
	Add(delta float64)
}

type Gauge interface {
	With(labelValues ...string) Gauge
	Add(delta float64)
	Set(value float64)
}

type Histogram interface {
	With(labelValues ...string) Histogram
	Observe(value float64)
}

// Provider creates metrics
type Provider interface {
	NewCounter(CounterOpts) Counter
	NewGauge(GaugeOpts) Gauge
	NewHistogram(HistogramOpts) Histogram
}

// WithNamespace returns a provider setting namespace on the options that do not carry one
func WithNamespace(p Provider, namespace string) Provider {
	return &namespaced{Provider: p, namespace: namespace}
}

type namespaced struct {
	Provider
	namespace string
}

func (n *namespaced) NewCounter(o CounterOpts) Counter {
	if len(o.Namespace) == 0 {
		o.Namespace = n.namespace
	}
	return n.Provider.NewCounter(o)
}

func (n *namespaced) NewGauge(o GaugeOpts) Gauge {
	if len(o.Namespace) == 0 {
		o.Namespace = n.namespace
	}
	return n.Provider.NewGauge(o)
}

func (n *namespaced) NewHistogram(o HistogramOpts) Histogram {
	if len(o.Namespace) == 0 {
		o.Namespace = n.namespace
	}
	return n.Provider.NewHistogram(o)
}
