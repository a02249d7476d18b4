/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package finality

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Step is one stage of a chain, reading and filling the shared state
type Step[S any] func(ctx context.Context, state S) error

type namedStep[S any] struct {
	name string
	run  Step[S]
}

// Chain runs dependent steps in order. A step runs only if all the previous ones succeeded.
type Chain[S any] struct {
	name    string
	steps   []namedStep[S]
	tracer  trace.Tracer
	metrics *Metrics
}

func NewChain[S any](name string, tracer trace.Tracer, m *Metrics) *Chain[S] {
	return &Chain[S]{name: name, tracer: tracer, metrics: m}
}

// Then appends a step
func (c *Chain[S]) Then(name string, step Step[S]) *Chain[S] {
	c.steps = append(c.steps, namedStep[S]{name: name, run: step})
	return c
}

// Run executes the steps on state. The error of the failing step keeps its cause.
func (c *Chain[S]) Run(ctx context.Context, state S) error {
	ctx, span := c.tracer.Start(ctx, c.name)
	defer span.End()

	for _, s := range c.steps {
		if ctx.Err() != nil {
			return errors.Wrapf(ErrCancelled, "[%s] before step [%s]", c.name, s.name)
		}
		if err := c.runStep(ctx, s, state); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain[S]) runStep(ctx context.Context, s namedStep[S], state S) error {
	ctx, span := c.tracer.Start(ctx, s.name, trace.WithAttributes(attribute.String("step", s.name)))
	defer span.End()

	start := time.Now()
	err := s.run(ctx, state)
	c.metrics.StepDuration.With("step", s.name).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}
	if IsSilent(err) {
		span.SetAttributes(attribute.String("outcome", err.Error()))
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return errors.WithMessagef(err, "[%s] step [%s]", c.name, s.name)
}
