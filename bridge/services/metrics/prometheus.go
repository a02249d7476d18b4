/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
)

var logger = logging.MustGetLogger("metrics")

// PrometheusProvider registers the metrics on a prometheus registerer.
// Registering the same metric twice returns the collector registered first.
type PrometheusProvider struct {
	registerer prometheus.Registerer
}

func NewPrometheusProvider(r prometheus.Registerer) *PrometheusProvider {
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	return &PrometheusProvider{registerer: r}
}

func (p *PrometheusProvider) NewCounter(o CounterOpts) Counter {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: o.Namespace,
		Subsystem: o.Subsystem,
		Name:      o.Name,
		Help:      o.Help,
	}, o.LabelNames)
	return &counter{vec: register(p.registerer, vec)}
}

func (p *PrometheusProvider) NewGauge(o GaugeOpts) Gauge {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: o.Namespace,
		Subsystem: o.Subsystem,
		Name:      o.Name,
		Help:      o.Help,
	}, o.LabelNames)
	return &gauge{vec: register(p.registerer, vec)}
}

func (p *PrometheusProvider) NewHistogram(o HistogramOpts) Histogram {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: o.Namespace,
		Subsystem: o.Subsystem,
		Name:      o.Name,
		Help:      o.Help,
		Buckets:   o.Buckets,
	}, o.LabelNames)
	return &histogram{vec: register(p.registerer, vec)}
}

func register[C prometheus.Collector](r prometheus.Registerer, c C) C {
	err := r.Register(c)
	if err == nil {
		return c
	}
	are := prometheus.AlreadyRegisteredError{}
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			logger.Debugf("reusing registered collector: %v", err)
			return existing
		}
	}
	panic(err)
}

type counter struct {
	vec    *prometheus.CounterVec
	labels []string
}

func (c *counter) With(labelValues ...string) Counter {
	return &counter{vec: c.vec, labels: append(append([]string{}, c.labels...), labelValues...)}
}

func (c *counter) Add(delta float64) {
	c.vec.With(labelsToMap(c.labels)).Add(delta)
}

type gauge struct {
	vec    *prometheus.GaugeVec
	labels []string
}

func (g *gauge) With(labelValues ...string) Gauge {
	return &gauge{vec: g.vec, labels: append(append([]string{}, g.labels...), labelValues...)}
}

func (g *gauge) Add(delta float64) {
	g.vec.With(labelsToMap(g.labels)).Add(delta)
}

func (g *gauge) Set(value float64) {
	g.vec.With(labelsToMap(g.labels)).Set(value)
}

type histogram struct {
	vec    *prometheus.HistogramVec
	labels []string
}

func (h *histogram) With(labelValues ...string) Histogram {
	return &histogram{vec: h.vec, labels: append(append([]string{}, h.labels...), labelValues...)}
}

func (h *histogram) Observe(value float64) {
	h.vec.With(labelsToMap(h.labels)).Observe(value)
}

// labelsToMap turns name/value pairs into prometheus labels. A trailing name gets the value "unknown".
func labelsToMap(pairs []string) prometheus.Labels {
	labels := prometheus.Labels{}
	for i := 0; i < len(pairs); i += 2 {
		if i+1 < len(pairs) {
			labels[pairs[i]] = pairs[i+1]
		} else {
			labels[pairs[i]] = "unknown"
		}
	}
	return labels
}
