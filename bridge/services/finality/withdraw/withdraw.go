/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package withdraw

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/config"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/events"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/finality"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/metrics"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/tracing"
	"go.opentelemetry.io/otel/trace"
)

var logger = logging.MustGetLogger("finality.withdraw")

// Opts configures the withdraw finalization services
type Opts struct {
	NetworkID       uint32
	Confirmations   uint64
	IntentTimeout   time.Duration
	ProofsTimeout   time.Duration
	TransferTimeout time.Duration
	PollInterval    time.Duration
	Parallelism     int
	// Publisher receives an events.WithdrawUpdated for every transition, may be nil
	Publisher      events.Publisher
	TracerProvider trace.TracerProvider
	Metrics        metrics.Provider
}

func NewOpts(f config.FinalityConfig, e config.EthereumConfig, s config.SoraNetConfig) Opts {
	return Opts{
		NetworkID:       s.NetworkID,
		Confirmations:   e.Confirmations,
		IntentTimeout:   f.IntentTimeout,
		ProofsTimeout:   f.ProofsTimeout,
		TransferTimeout: f.TransferTimeout,
		PollInterval:    f.PollInterval,
		Parallelism:     f.Parallelism,
	}
}

// state is shared by the steps of a chain
type state struct {
	record *driver.WithdrawRecord
	next   driver.WithdrawStatus
	mutate driver.WithdrawMutator
}

// base holds what the withdraw services share: loading records in their statuses and saving transitions
type base struct {
	name      string
	store     driver.WithdrawStore
	publisher events.Publisher
	metrics   *finality.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

func newBase(name string, store driver.WithdrawStore, opts Opts) base {
	tp := opts.TracerProvider
	if tp == nil {
		tp = tracing.Noop()
	}
	return base{
		name:      name,
		store:     store,
		publisher: opts.Publisher,
		metrics:   finality.NewMetrics(opts.Metrics, name),
		tracer:    tp.Tracer(name),
		now:       time.Now,
	}
}

func (b *base) load(statuses ...driver.WithdrawStatus) func(ctx context.Context) ([]*driver.WithdrawRecord, error) {
	return func(ctx context.Context) ([]*driver.WithdrawRecord, error) {
		return b.store.QueryByStatus(ctx, statuses...)
	}
}

// fetch reloads the record and cancels if it left the expected status
func (b *base) fetch(ctx context.Context, st *state) error {
	r, err := b.store.Get(ctx, st.record.ID)
	if err != nil {
		return err
	}
	if r.Status != st.record.Status {
		return errors.Wrapf(finality.ErrCancelled, "withdraw [%s] moved to [%s]", r.ID, r.Status)
	}
	st.record = r
	return nil
}

// save applies the transition chosen by the previous steps
func (b *base) save(ctx context.Context, st *state) error {
	from := st.record.Status
	if err := b.store.UpdateStatus(ctx, st.record.ID, from, st.next, st.mutate); err != nil {
		if errors.Is(err, driver.ErrStatusConflict) {
			return errors.Wrapf(finality.ErrCancelled, "withdraw [%s]: %s", st.record.ID, err)
		}
		return err
	}
	logger.Infof("withdraw [%s]: [%s] -> [%s]", st.record.ID, from, st.next)
	b.metrics.Transitions.With("status", st.next.String()).Add(1)
	if b.publisher != nil {
		if r, err := b.store.Get(ctx, st.record.ID); err == nil {
			b.publisher.Publish(events.Event{Topic: events.WithdrawUpdated, Payload: r})
		}
	}
	return nil
}

// fail sets a failed transition with the reason
func fail(st *state, status driver.WithdrawStatus, message string) {
	st.next = status
	st.mutate = func(r *driver.WithdrawRecord) {
		r.Message = message
	}
}

func id(r *driver.WithdrawRecord) string { return r.ID }
