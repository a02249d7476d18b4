/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package tracing

import (
	"sync"
	"time"

	"github.com/sora-xor/sora-bridge-sdk/bridge/services/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type span struct {
	trace.Span

	start      time.Time
	labelNames []string
	labels     map[string]string
	mu         sync.Mutex
	operations metrics.Counter
	duration   metrics.Histogram
}

func (s *span) End(options ...trace.SpanEndOption) {
	s.Span.End(options...)

	c := trace.NewSpanEndConfig(options...)
	s.updateLabels(c.Attributes())

	pairs := s.pairs()
	s.operations.With(pairs...).Add(1)
	s.duration.With(pairs...).Observe(defaultNow(c.Timestamp()).Sub(s.start).Seconds())
}

func (s *span) AddEvent(name string, options ...trace.EventOption) {
	s.Span.AddEvent(name, options...)

	c := trace.NewEventConfig(options...)
	s.updateLabels(c.Attributes())
}

func (s *span) SetAttributes(kv ...attribute.KeyValue) {
	s.Span.SetAttributes(kv...)

	s.updateLabels(kv)
}

func (s *span) updateLabels(attrs []attribute.KeyValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kv := range attrs {
		if !kv.Valid() {
			continue
		}
		if _, ok := s.labels[string(kv.Key)]; ok {
			s.labels[string(kv.Key)] = kv.Value.Emit()
		}
	}
}

// pairs returns every label name with its value, empty when never set
func (s *span) pairs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	pairs := make([]string, 0, 2*len(s.labelNames))
	for _, name := range s.labelNames {
		pairs = append(pairs, name, s.labels[name])
	}
	return pairs
}

func newSpan(backingSpan trace.Span, labelNames []string, operations metrics.Counter, duration metrics.Histogram, opts ...trace.SpanStartOption) *span {
	c := trace.NewSpanStartConfig(opts...)
	s := &span{
		Span:       backingSpan,
		start:      defaultNow(c.Timestamp()),
		labelNames: labelNames,
		labels:     make(map[string]string, len(labelNames)),
		operations: operations,
		duration:   duration,
	}
	for _, name := range labelNames {
		s.labels[name] = ""
	}
	s.updateLabels(c.Attributes())
	return s
}

func defaultNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
