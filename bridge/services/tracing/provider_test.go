/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package tracing

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestSpansRecordMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	tp := NewProvider(nil, metrics.NewPrometheusProvider(reg))
	tr := tp.Tracer("withdraw.proofs", WithMetricsOpts(MetricsOpts{Namespace: "bridge", LabelNames: []string{"step", "status"}}))

	ctx, s := tr.Start(context.Background(), "fetch", trace.WithAttributes(attribute.String("step", "fetch"), attribute.String("ignored", "x")))
	assert.Equal(t, s, trace.SpanFromContext(ctx))
	s.SetAttributes(attribute.String("status", "ok"))
	s.End()

	_, s = tr.Start(context.Background(), "save", trace.WithAttributes(attribute.String("step", "save")))
	s.End()

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "bridge_withdraw_proofs_operations" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			counts[labels["step"]+"/"+labels["status"]] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"fetch/ok": 1, "save/": 1}, counts)
}

func TestNoop(t *testing.T) {
	_, s := Noop().Tracer("any").Start(context.Background(), "op")
	assert.NotPanics(t, func() { s.End() })
}
