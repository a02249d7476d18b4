/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package deposit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/config"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/ethereum"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/events"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/finality"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/metrics"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/soranet"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/tracing"
	"go.opentelemetry.io/otel/trace"
)

var logger = logging.MustGetLogger("finality.deposit")

// ReceiptSource returns Ethereum receipts. *ethereum.Gateway satisfies it.
type ReceiptSource interface {
	Receipt(ctx context.Context, hash string) (*ethereum.Receipt, error)
}

// RequestSource returns the status of bridge requests. *soranet.Client satisfies it.
type RequestSource interface {
	Requests(ctx context.Context, hashes []string, networkID uint32) ([]soranet.Request, error)
}

type Opts struct {
	NetworkID      uint32
	Confirmations  uint64
	DepositTimeout time.Duration
	PollInterval   time.Duration
	Parallelism    int
	Publisher      events.Publisher
	TracerProvider trace.TracerProvider
	Metrics        metrics.Provider
}

func NewOpts(f config.FinalityConfig, e config.EthereumConfig, s config.SoraNetConfig) Opts {
	return Opts{
		NetworkID:      s.NetworkID,
		Confirmations:  e.Confirmations,
		DepositTimeout: f.DepositTimeout,
		PollInterval:   f.PollInterval,
		Parallelism:    f.Parallelism,
	}
}

type state struct {
	record *driver.DepositRecord
	next   driver.DepositStatus
	mutate driver.DepositMutator
}

// FinalizationService follows a deposit from its Ethereum transaction to the completion of
// the incoming request on SORA
type FinalizationService struct {
	store    driver.DepositStore
	receipts ReceiptSource
	requests RequestSource
	opts     Opts
	metrics  *finality.Metrics
	tracer   trace.Tracer
	now      func() time.Time
	receive  *finality.Chain[*state]
	transfer *finality.Chain[*state]
	runner   *finality.Runner[*driver.DepositRecord]
}

func NewFinalizationService(stores *driver.Stores, receipts ReceiptSource, requests RequestSource, opts Opts) *FinalizationService {
	tp := opts.TracerProvider
	if tp == nil {
		tp = tracing.Noop()
	}
	s := &FinalizationService{
		store:    stores.Deposits,
		receipts: receipts,
		requests: requests,
		opts:     opts,
		metrics:  finality.NewMetrics(opts.Metrics, "deposit"),
		tracer:   tp.Tracer("deposit"),
		now:      time.Now,
	}
	s.receive = finality.NewChain[*state]("receive", s.tracer, s.metrics).
		Then("fetch", s.fetch).
		Then("check_receipt", s.checkReceipt).
		Then("save", s.save)
	s.transfer = finality.NewChain[*state]("transfer", s.tracer, s.metrics).
		Then("fetch", s.fetch).
		Then("check_request", s.checkRequest).
		Then("save", s.save)
	s.runner = finality.NewRunner(finality.RunnerOpts[*driver.DepositRecord]{
		Name:     "deposit",
		Tables:   []string{stores.Tables.Deposits},
		Notifier: stores.Notifier,
		Load: func(ctx context.Context) ([]*driver.DepositRecord, error) {
			return s.store.QueryByStatus(ctx, driver.DepositPending, driver.DepositReceived)
		},
		ID:           func(r *driver.DepositRecord) string { return r.ID },
		Process:      s.Process,
		PollInterval: opts.PollInterval,
		Parallelism:  opts.Parallelism,
		Metrics:      s.metrics,
	})
	return s
}

func (s *FinalizationService) Run(ctx context.Context) error {
	return s.runner.Run(ctx)
}

func (s *FinalizationService) Sweep(ctx context.Context) {
	s.runner.Sweep(ctx)
}

func (s *FinalizationService) Process(ctx context.Context, r *driver.DepositRecord) error {
	switch r.Status {
	case driver.DepositPending:
		return s.receive.Run(ctx, &state{record: r})
	case driver.DepositReceived:
		return s.transfer.Run(ctx, &state{record: r})
	default:
		return errors.Wrapf(finality.ErrCancelled, "deposit [%s] is [%s]", r.ID, r.Status)
	}
}

func (s *FinalizationService) fetch(ctx context.Context, st *state) error {
	r, err := s.store.Get(ctx, st.record.ID)
	if err != nil {
		return err
	}
	if r.Status != st.record.Status {
		return errors.Wrapf(finality.ErrCancelled, "deposit [%s] moved to [%s]", r.ID, r.Status)
	}
	st.record = r
	return nil
}

func (s *FinalizationService) checkReceipt(ctx context.Context, st *state) error {
	r := st.record
	expired := s.now().Sub(r.CreatedAt) > s.opts.DepositTimeout
	receipt, err := s.receipts.Receipt(ctx, r.DepositTxHash)
	if errors.Is(err, ethereum.ErrReceiptNotFound) {
		if expired {
			fail(st, driver.DepositFailed, "deposit not mined in time")
			return nil
		}
		return errors.Wrapf(finality.ErrNotReady, "deposit [%s] not mined", r.DepositTxHash)
	}
	if err != nil {
		if expired {
			logger.Warnf("deposit [%s] expired while its receipt is unavailable: %s", r.ID, err)
			fail(st, driver.DepositFailed, "deposit not mined in time")
			return nil
		}
		return err
	}
	if !receipt.Success {
		fail(st, driver.DepositFailed, "deposit reverted")
		return nil
	}
	if receipt.Confirmations < s.opts.Confirmations {
		return errors.Wrapf(finality.ErrNotReady, "deposit [%s] has %d of %d confirmations", r.DepositTxHash, receipt.Confirmations, s.opts.Confirmations)
	}
	st.next = driver.DepositReceived
	st.mutate = func(r *driver.DepositRecord) {
		if len(r.RequestHash) == 0 {
			r.RequestHash = r.DepositTxHash
		}
	}
	return nil
}

func (s *FinalizationService) checkRequest(ctx context.Context, st *state) error {
	r := st.record
	hash := r.RequestHash
	if len(hash) == 0 {
		hash = r.DepositTxHash
	}
	expired := s.now().Sub(r.UpdatedAt) > s.opts.DepositTimeout
	requests, err := s.requests.Requests(ctx, []string{hash}, s.opts.NetworkID)
	if err != nil {
		if expired {
			logger.Warnf("deposit [%s] expired while request [%s] is unavailable: %s", r.ID, hash, err)
			fail(st, driver.DepositTransferFailed, "request not completed in time")
			return nil
		}
		return errors.WithMessagef(err, "failed getting request [%s]", hash)
	}

	var status soranet.RequestStatus
	if len(requests) != 0 {
		status = requests[0].Status
	}
	switch status {
	case soranet.Done:
		st.next = driver.DepositTransferCompleted
		st.mutate = func(r *driver.DepositRecord) { r.Message = "" }
		return nil
	case soranet.Failed, soranet.Broken:
		fail(st, driver.DepositTransferFailed, "request "+string(status))
		return nil
	}
	if expired {
		fail(st, driver.DepositTransferFailed, "request not completed in time")
		return nil
	}
	return errors.Wrapf(finality.ErrNotReady, "request [%s] is [%s]", hash, status)
}

func (s *FinalizationService) save(ctx context.Context, st *state) error {
	from := st.record.Status
	if err := s.store.UpdateStatus(ctx, st.record.ID, from, st.next, st.mutate); err != nil {
		if errors.Is(err, driver.ErrStatusConflict) {
			return errors.Wrapf(finality.ErrCancelled, "deposit [%s]: %s", st.record.ID, err)
		}
		return err
	}
	logger.Infof("deposit [%s]: [%s] -> [%s]", st.record.ID, from, st.next)
	s.metrics.Transitions.With("status", st.next.String()).Add(1)
	if s.opts.Publisher != nil {
		if r, err := s.store.Get(ctx, st.record.ID); err == nil {
			s.opts.Publisher.Publish(events.Event{Topic: events.DepositUpdated, Payload: r})
		}
	}
	return nil
}

func fail(st *state, status driver.DepositStatus, message string) {
	st.next = status
	st.mutate = func(r *driver.DepositRecord) {
		r.Message = message
	}
}
