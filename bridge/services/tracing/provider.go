/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package tracing

import (
	"context"
	"strings"

	"github.com/sora-xor/sora-bridge-sdk/bridge/services/metrics"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type tracerProvider struct {
	trace.TracerProvider
	metrics metrics.Provider
}

// NewProvider returns a TracerProvider whose spans also count the operations and observe their duration.
// A nil backing provider records no traces.
func NewProvider(backing trace.TracerProvider, mp metrics.Provider) trace.TracerProvider {
	if backing == nil {
		backing = noop.NewTracerProvider()
	}
	if mp == nil {
		mp = metrics.Disabled{}
	}
	return &tracerProvider{TracerProvider: backing, metrics: mp}
}

// Noop returns a provider that neither traces nor records metrics
func Noop() trace.TracerProvider {
	return NewProvider(nil, nil)
}

func (p *tracerProvider) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	c := trace.NewTracerConfig(options...)
	o := extractMetricsOpts(c.InstrumentationAttributes())
	subsystem := metricName(name)
	return &tracer{
		Tracer:     p.TracerProvider.Tracer(name, options...),
		labelNames: o.LabelNames,
		operations: p.metrics.NewCounter(metrics.CounterOpts{
			Namespace:  o.Namespace,
			Subsystem:  subsystem,
			Name:       "operations",
			Help:       "The number of " + name + " operations",
			LabelNames: o.LabelNames,
		}),
		duration: p.metrics.NewHistogram(metrics.HistogramOpts{
			Namespace:  o.Namespace,
			Subsystem:  subsystem,
			Name:       "duration",
			Help:       "Duration of the " + name + " operations in seconds",
			LabelNames: o.LabelNames,
		}),
	}
}

type tracer struct {
	trace.Tracer
	labelNames []string
	operations metrics.Counter
	duration   metrics.Histogram
}

func (t *tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	ctx, backing := t.Tracer.Start(ctx, spanName, opts...)
	s := newSpan(backing, t.labelNames, t.operations, t.duration, opts...)
	return trace.ContextWithSpan(ctx, s), s
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", " ", "_").Replace(name)
}
