/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package withdraw

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/finality"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/soranet"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
)

// ProofSource returns the approved outgoing requests. *soranet.Client satisfies it.
type ProofSource interface {
	ApprovedRequests(ctx context.Context, hashes []string, networkID uint32) ([]soranet.ApprovedRequest, error)
}

// ProofsFinalizationService finalizes the withdraw intents from the transaction history
// and collects the proofs of the bridge peers
type ProofsFinalizationService struct {
	base
	transactions driver.TransactionStore
	proofs       ProofSource
	opts         Opts
	intent       *finality.Chain[*state]
	proof        *finality.Chain[*state]
	runner       *finality.Runner[*driver.WithdrawRecord]
}

func NewProofsFinalizationService(stores *driver.Stores, proofs ProofSource, opts Opts) *ProofsFinalizationService {
	s := &ProofsFinalizationService{
		base:         newBase("withdraw_proofs", stores.Withdrawals, opts),
		transactions: stores.Transactions,
		proofs:       proofs,
		opts:         opts,
	}
	s.intent = finality.NewChain[*state]("intent", s.tracer, s.metrics).
		Then("fetch", s.fetch).
		Then("check_intent", s.checkIntent).
		Then("save", s.save)
	s.proof = finality.NewChain[*state]("proofs", s.tracer, s.metrics).
		Then("fetch", s.fetch).
		Then("get_proof", s.getProof).
		Then("save", s.save)
	s.runner = finality.NewRunner(finality.RunnerOpts[*driver.WithdrawRecord]{
		Name:         s.name,
		Tables:       []string{stores.Tables.Withdrawals, stores.Tables.Transactions},
		Notifier:     stores.Notifier,
		Load:         s.load(driver.IntentPending, driver.IntentFinalized),
		ID:           id,
		Process:      s.Process,
		PollInterval: opts.PollInterval,
		Parallelism:  opts.Parallelism,
		Metrics:      s.metrics,
	})
	return s
}

// Run processes the withdrawals until ctx is done
func (s *ProofsFinalizationService) Run(ctx context.Context) error {
	return s.runner.Run(ctx)
}

// Sweep processes once the withdrawals waiting for their intent or proof
func (s *ProofsFinalizationService) Sweep(ctx context.Context) {
	s.runner.Sweep(ctx)
}

// Process advances one withdrawal
func (s *ProofsFinalizationService) Process(ctx context.Context, r *driver.WithdrawRecord) error {
	switch r.Status {
	case driver.IntentPending:
		return s.intent.Run(ctx, &state{record: r})
	case driver.IntentFinalized:
		return s.proof.Run(ctx, &state{record: r})
	default:
		return errors.Wrapf(finality.ErrCancelled, "withdraw [%s] is [%s]", r.ID, r.Status)
	}
}

func (s *ProofsFinalizationService) checkIntent(ctx context.Context, st *state) error {
	r := st.record
	tx, err := s.transactions.Get(ctx, r.IntentTxHash)
	if err != nil && !errors.Is(err, driver.ErrNotFound) {
		return err
	}

	switch {
	case tx == nil || tx.Status == driver.Pending:
		if s.now().Sub(r.CreatedAt) > s.opts.IntentTimeout {
			fail(st, driver.IntentFailed, "intent not found in time")
			return nil
		}
		return errors.Wrapf(finality.ErrNotReady, "intent [%s] not committed yet", r.IntentTxHash)
	case tx.Status == driver.Failed:
		fail(st, driver.IntentFailed, "intent failed")
		return nil
	}

	requestHash := tx.RequestHash
	if len(requestHash) == 0 {
		requestHash = r.RequestHash
	}
	if len(requestHash) == 0 {
		fail(st, driver.IntentFailed, "intent registered no bridge request")
		return nil
	}
	st.next = driver.IntentFinalized
	st.mutate = func(r *driver.WithdrawRecord) {
		r.RequestHash = requestHash
		if tx.Fee != nil {
			r.Fee = tx.Fee
		}
	}
	return nil
}

func (s *ProofsFinalizationService) getProof(ctx context.Context, st *state) error {
	r := st.record
	if s.now().Sub(r.UpdatedAt) > s.opts.ProofsTimeout {
		fail(st, driver.ProofsFailed, "proofs not approved in time")
		return nil
	}

	approved, err := s.proofs.ApprovedRequests(ctx, []string{r.RequestHash}, s.opts.NetworkID)
	if err != nil {
		return errors.WithMessagef(err, "failed getting proofs of [%s]", r.RequestHash)
	}
	for _, a := range approved {
		if len(a.Signatures) == 0 {
			continue
		}
		proof, err := json.Marshal(a.Signatures)
		if err != nil {
			return errors.Wrap(err, "failed encoding proof")
		}
		st.next = driver.ProofsFinalized
		st.mutate = func(r *driver.WithdrawRecord) {
			r.Proof = proof
		}
		return nil
	}
	return errors.Wrapf(finality.ErrNotReady, "request [%s] not approved yet", r.RequestHash)
}
