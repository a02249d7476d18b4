/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	namespaceKey  = "namespace"
	labelNamesKey = "label_names"
)

// MetricsOpts configures the metrics recorded by the spans of a tracer.
// Only the span attributes listed in LabelNames become labels.
type MetricsOpts struct {
	Namespace  string
	LabelNames []string
}

func WithMetricsOpts(o MetricsOpts) trace.TracerOption {
	set := attribute.NewSet(
		attribute.String(namespaceKey, o.Namespace),
		attribute.StringSlice(labelNamesKey, o.LabelNames),
	)
	return trace.WithInstrumentationAttributes(set.ToSlice()...)
}

func extractMetricsOpts(attrs attribute.Set) MetricsOpts {
	o := MetricsOpts{}
	if val, ok := attrs.Value(namespaceKey); ok {
		o.Namespace = val.AsString()
	}
	if val, ok := attrs.Value(labelNamesKey); ok {
		o.LabelNames = val.AsStringSlice()
	}
	return o
}
