/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package withdraw

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/ethereum"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/finality"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
)

// Gateway releases withdrawn assets on Ethereum. *ethereum.Gateway satisfies it.
type Gateway interface {
	PrepareWithdrawal(ctx context.Context, r *driver.WithdrawRecord) (*types.Transaction, error)
	SendRaw(ctx context.Context, raw []byte) error
	Receipt(ctx context.Context, hash string) (*ethereum.Receipt, error)
}

// TransferFinalizationService submits the proven withdrawals to the bridge contract and
// waits for their confirmation
type TransferFinalizationService struct {
	base
	gateway Gateway
	opts    Opts
	submit  *finality.Chain[*state]
	confirm *finality.Chain[*state]
	runner  *finality.Runner[*driver.WithdrawRecord]
}

func NewTransferFinalizationService(stores *driver.Stores, gateway Gateway, opts Opts) *TransferFinalizationService {
	s := &TransferFinalizationService{
		base:    newBase("withdraw_transfer", stores.Withdrawals, opts),
		gateway: gateway,
		opts:    opts,
	}
	// the signed transaction is saved before it is broadcast, the confirmation resends it if lost
	s.submit = finality.NewChain[*state]("submit", s.tracer, s.metrics).
		Then("fetch", s.fetch).
		Then("prepare", s.prepare).
		Then("save", s.save).
		Then("broadcast", s.broadcast)
	s.confirm = finality.NewChain[*state]("confirm", s.tracer, s.metrics).
		Then("fetch", s.fetch).
		Then("check_receipt", s.checkReceipt).
		Then("save", s.save)
	s.runner = finality.NewRunner(finality.RunnerOpts[*driver.WithdrawRecord]{
		Name:         s.name,
		Tables:       []string{stores.Tables.Withdrawals},
		Notifier:     stores.Notifier,
		Load:         s.load(driver.ProofsFinalized, driver.TransferPending),
		ID:           id,
		Process:      s.Process,
		PollInterval: opts.PollInterval,
		Parallelism:  opts.Parallelism,
		Metrics:      s.metrics,
	})
	return s
}

func (s *TransferFinalizationService) Run(ctx context.Context) error {
	return s.runner.Run(ctx)
}

func (s *TransferFinalizationService) Sweep(ctx context.Context) {
	s.runner.Sweep(ctx)
}

func (s *TransferFinalizationService) Process(ctx context.Context, r *driver.WithdrawRecord) error {
	switch r.Status {
	case driver.ProofsFinalized:
		return s.submit.Run(ctx, &state{record: r})
	case driver.TransferPending:
		return s.confirm.Run(ctx, &state{record: r})
	default:
		return errors.Wrapf(finality.ErrCancelled, "withdraw [%s] is [%s]", r.ID, r.Status)
	}
}

func (s *TransferFinalizationService) prepare(ctx context.Context, st *state) error {
	tx, err := s.gateway.PrepareWithdrawal(ctx, st.record)
	if errors.Is(err, ethereum.ErrInvalidWithdrawal) {
		fail(st, driver.TransferFailed, err.Error())
		return nil
	}
	if err != nil {
		return err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "failed encoding transaction")
	}
	hash := tx.Hash().Hex()
	st.next = driver.TransferPending
	st.mutate = func(r *driver.WithdrawRecord) {
		r.TransferTxHash = hash
		r.TransferRawTx = raw
	}
	return nil
}

func (s *TransferFinalizationService) broadcast(ctx context.Context, st *state) error {
	if st.next != driver.TransferPending {
		return nil
	}
	r, err := s.store.Get(ctx, st.record.ID)
	if err != nil {
		return err
	}
	if err := s.gateway.SendRaw(ctx, r.TransferRawTx); err != nil {
		// the confirmation sweep sends it again
		logger.Warnf("failed broadcasting withdraw [%s]: %s", r.ID, err)
	}
	return nil
}

func (s *TransferFinalizationService) checkReceipt(ctx context.Context, st *state) error {
	r := st.record
	receipt, err := s.gateway.Receipt(ctx, r.TransferTxHash)
	if errors.Is(err, ethereum.ErrReceiptNotFound) {
		if s.now().Sub(r.UpdatedAt) > s.opts.TransferTimeout {
			fail(st, driver.TransferFailed, "transfer not mined in time")
			return nil
		}
		if len(r.TransferRawTx) != 0 {
			if err := s.gateway.SendRaw(ctx, r.TransferRawTx); err != nil {
				logger.Warnf("failed rebroadcasting withdraw [%s]: %s", r.ID, err)
			}
		}
		return errors.Wrapf(finality.ErrNotReady, "transfer [%s] not mined", r.TransferTxHash)
	}
	if err != nil {
		return err
	}

	if !receipt.Success {
		fail(st, driver.TransferFailed, "transfer reverted")
		return nil
	}
	if receipt.Confirmations < s.opts.Confirmations {
		return errors.Wrapf(finality.ErrNotReady, "transfer [%s] has %d of %d confirmations", r.TransferTxHash, receipt.Confirmations, s.opts.Confirmations)
	}
	st.next = driver.TransferCompleted
	st.mutate = func(r *driver.WithdrawRecord) {
		r.Message = ""
	}
	return nil
}
