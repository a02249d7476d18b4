/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package withdraw

import (
	"context"
	"encoding/json"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/ethereum"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/events"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/soranet"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/notifier"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/sql/sqlite"
	"go.uber.org/goleak"
)

func openStores(t *testing.T) *driver.Stores {
	t.Helper()
	stores, err := sqlite.NewDriver().Open(driver.Opts{
		DataSource:  "file:" + filepath.Join(t.TempDir(), "bridge.db"),
		TablePrefix: "test",
	}, notifier.New())
	Expect(err).ToNot(HaveOccurred())
	t.Cleanup(func() { Expect(stores.Close()).To(Succeed()) })
	return stores
}

func testOpts() Opts {
	return Opts{
		Confirmations:   3,
		IntentTimeout:   10 * time.Minute,
		ProofsTimeout:   time.Hour,
		TransferTimeout: time.Hour,
		PollInterval:    time.Hour,
		Parallelism:     2,
	}
}

type fakeProofs struct {
	mu       sync.Mutex
	approved map[string][]driver.Signature
	asked    [][]string
}

func (f *fakeProofs) ApprovedRequests(_ context.Context, hashes []string, _ uint32) ([]soranet.ApprovedRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, hashes)
	var res []soranet.ApprovedRequest
	for _, h := range hashes {
		if sigs, ok := f.approved[h]; ok {
			res = append(res, soranet.ApprovedRequest{Request: json.RawMessage(`{}`), Signatures: sigs})
		}
	}
	return res, nil
}

func (f *fakeProofs) approve(hash string, sigs ...driver.Signature) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved[hash] = sigs
}

type fakeGateway struct {
	mu       sync.Mutex
	nonce    uint64
	sent     [][]byte
	receipts map[string]*ethereum.Receipt
	err      error
}

func (g *fakeGateway) PrepareWithdrawal(_ context.Context, r *driver.WithdrawRecord) (*types.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	if !common.IsHexAddress(r.Receiver) {
		return nil, errors.Wrapf(ethereum.ErrInvalidWithdrawal, "invalid receiver [%s]", r.Receiver)
	}
	g.nonce++
	to := common.HexToAddress(r.Receiver)
	return types.NewTx(&types.LegacyTx{Nonce: g.nonce, To: &to, Value: big.NewInt(0), Gas: 21000, GasPrice: big.NewInt(1)}), nil
}

func (g *fakeGateway) SendRaw(_ context.Context, raw []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, raw)
	return nil
}

func (g *fakeGateway) Receipt(_ context.Context, hash string) (*ethereum.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.receipts[hash]
	if !ok {
		return nil, ethereum.ErrReceiptNotFound
	}
	return r, nil
}

func addWithdraw(t *testing.T, stores *driver.Stores, r *driver.WithdrawRecord) {
	if r.Amount == nil {
		r.Amount = big.NewInt(100)
	}
	Expect(stores.Withdrawals.Add(context.Background(), r)).To(Succeed())
}

func get(t *testing.T, stores *driver.Stores, id string) *driver.WithdrawRecord {
	r, err := stores.Withdrawals.Get(context.Background(), id)
	Expect(err).ToNot(HaveOccurred())
	return r
}

func TestProofsFinalization(t *testing.T) {
	RegisterTestingT(t)
	ctx := context.Background()
	stores := openStores(t)
	proofs := &fakeProofs{approved: map[string][]driver.Signature{}}
	center := events.NewService()
	updates := make(chan events.Event, 10)
	center.Subscribe(events.WithdrawUpdated, updates)

	opts := testOpts()
	opts.Publisher = center
	s := NewProofsFinalizationService(stores, proofs, opts)
	addWithdraw(t, stores, &driver.WithdrawRecord{ID: "w1", IntentTxHash: "0xintent", Status: driver.IntentPending})

	// intent not in the history yet
	s.Sweep(ctx)
	Expect(get(t, stores, "w1").Status).To(Equal(driver.IntentPending))

	Expect(stores.Transactions.Upsert(ctx, &driver.TransactionRecord{
		TxHash: "0xintent", Sender: "cnAlice", Type: driver.Extrinsic, Status: driver.Committed,
		Fee: big.NewInt(7), RequestHash: "0xrequest",
	})).To(Succeed())
	s.Sweep(ctx)
	r := get(t, stores, "w1")
	Expect(r.Status).To(Equal(driver.IntentFinalized))
	Expect(r.RequestHash).To(Equal("0xrequest"))
	Expect(r.Fee).To(Equal(big.NewInt(7)))
	Expect((<-updates).Payload.(*driver.WithdrawRecord).Status).To(Equal(driver.IntentFinalized))

	// the proofs are collected in the next sweep
	s.Sweep(ctx)
	Expect(get(t, stores, "w1").Status).To(Equal(driver.IntentFinalized))
	Expect(proofs.asked).To(ContainElement([]string{"0xrequest"}))

	proofs.approve("0xrequest", driver.Signature{V: 27, R: "0x01", S: "0x02"})
	s.Sweep(ctx)
	r = get(t, stores, "w1")
	Expect(r.Status).To(Equal(driver.ProofsFinalized))
	sigs, err := r.Signatures()
	Expect(err).ToNot(HaveOccurred())
	Expect(sigs).To(Equal([]driver.Signature{{V: 27, R: "0x01", S: "0x02"}}))
}

func TestProofsFinalizationFailures(t *testing.T) {
	RegisterTestingT(t)
	ctx := context.Background()
	stores := openStores(t)
	s := NewProofsFinalizationService(stores, &fakeProofs{approved: map[string][]driver.Signature{}}, testOpts())

	addWithdraw(t, stores, &driver.WithdrawRecord{ID: "failed", IntentTxHash: "0xf", Status: driver.IntentPending})
	addWithdraw(t, stores, &driver.WithdrawRecord{ID: "no_request", IntentTxHash: "0xn", Status: driver.IntentPending})
	addWithdraw(t, stores, &driver.WithdrawRecord{ID: "lost", IntentTxHash: "0xl", Status: driver.IntentPending})
	addWithdraw(t, stores, &driver.WithdrawRecord{ID: "unproven", IntentTxHash: "0xu", RequestHash: "0xr", Status: driver.IntentFinalized})
	Expect(stores.Transactions.Upsert(ctx,
		&driver.TransactionRecord{TxHash: "0xf", Type: driver.Extrinsic, Status: driver.Failed},
		&driver.TransactionRecord{TxHash: "0xn", Type: driver.Extrinsic, Status: driver.Committed},
	)).To(Succeed())

	s.Sweep(ctx)
	Expect(get(t, stores, "failed").Status).To(Equal(driver.IntentFailed))
	Expect(get(t, stores, "no_request").Status).To(Equal(driver.IntentFailed))
	Expect(get(t, stores, "no_request").Message).To(ContainSubstring("no bridge request"))
	Expect(get(t, stores, "lost").Status).To(Equal(driver.IntentPending))
	Expect(get(t, stores, "unproven").Status).To(Equal(driver.IntentFinalized))

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	s.Sweep(ctx)
	Expect(get(t, stores, "lost").Status).To(Equal(driver.IntentFailed))
	Expect(get(t, stores, "lost").Message).To(Equal("intent not found in time"))
	Expect(get(t, stores, "unproven").Status).To(Equal(driver.ProofsFailed))
}

func TestProcessIgnoresOtherStatuses(t *testing.T) {
	RegisterTestingT(t)
	stores := openStores(t)
	s := NewProofsFinalizationService(stores, &fakeProofs{}, testOpts())
	addWithdraw(t, stores, &driver.WithdrawRecord{ID: "w", IntentTxHash: "0x1", Status: driver.IntentPending})

	stale := get(t, stores, "w")
	Expect(stores.Withdrawals.UpdateStatus(context.Background(), "w", driver.IntentPending, driver.IntentFailed, nil)).To(Succeed())
	err := s.Process(context.Background(), stale)
	Expect(err).To(HaveOccurred())
	Expect(err.Error()).To(ContainSubstring("moved to"))
}

func proven(id string) *driver.WithdrawRecord {
	return &driver.WithdrawRecord{
		ID:                   id,
		IntentTxHash:         "0xintent_" + id,
		RequestHash:          "0xrequest",
		Receiver:             "0x00000000000000000000000000000000000000aa",
		EthereumAssetAddress: "0x00000000000000000000000000000000000000bb",
		Proof:                json.RawMessage(`[{"v":27,"r":"0x01","s":"0x02"}]`),
		Status:               driver.ProofsFinalized,
	}
}

func TestTransferFinalization(t *testing.T) {
	RegisterTestingT(t)
	ctx := context.Background()
	stores := openStores(t)
	gateway := &fakeGateway{receipts: map[string]*ethereum.Receipt{}}
	s := NewTransferFinalizationService(stores, gateway, testOpts())
	addWithdraw(t, stores, proven("w1"))
	addWithdraw(t, stores, proven("w2"))

	s.Sweep(ctx)
	w1, w2 := get(t, stores, "w1"), get(t, stores, "w2")
	Expect(w1.Status).To(Equal(driver.TransferPending))
	Expect(w1.TransferTxHash).ToNot(BeEmpty())
	Expect(w1.TransferRawTx).ToNot(BeEmpty())
	Expect(w2.TransferTxHash).ToNot(Equal(w1.TransferTxHash))
	Expect(gateway.sent).To(HaveLen(2))

	// not mined: sent again
	s.Sweep(ctx)
	Expect(get(t, stores, "w1").Status).To(Equal(driver.TransferPending))
	Expect(gateway.sent).To(HaveLen(4))

	gateway.mu.Lock()
	gateway.receipts[w1.TransferTxHash] = &ethereum.Receipt{Success: true, Confirmations: 1}
	gateway.receipts[w2.TransferTxHash] = &ethereum.Receipt{Success: false, Confirmations: 1}
	gateway.mu.Unlock()
	s.Sweep(ctx)
	Expect(get(t, stores, "w1").Status).To(Equal(driver.TransferPending))
	Expect(get(t, stores, "w2").Status).To(Equal(driver.TransferFailed))
	Expect(get(t, stores, "w2").Message).To(Equal("transfer reverted"))

	gateway.mu.Lock()
	gateway.receipts[w1.TransferTxHash].Confirmations = 3
	gateway.mu.Unlock()
	s.Sweep(ctx)
	Expect(get(t, stores, "w1").Status).To(Equal(driver.TransferCompleted))
}

func TestTransferTimeout(t *testing.T) {
	RegisterTestingT(t)
	ctx := context.Background()
	stores := openStores(t)
	s := NewTransferFinalizationService(stores, &fakeGateway{receipts: map[string]*ethereum.Receipt{}}, testOpts())
	addWithdraw(t, stores, proven("w1"))

	s.Sweep(ctx)
	Expect(get(t, stores, "w1").Status).To(Equal(driver.TransferPending))

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	s.Sweep(ctx)
	Expect(get(t, stores, "w1").Status).To(Equal(driver.TransferFailed))
}

func TestTransferInvalidWithdrawalFails(t *testing.T) {
	RegisterTestingT(t)
	ctx := context.Background()
	stores := openStores(t)
	gateway := &fakeGateway{receipts: map[string]*ethereum.Receipt{}, err: errors.New("connection refused")}
	s := NewTransferFinalizationService(stores, gateway, testOpts())
	invalid := proven("invalid")
	invalid.Receiver = "cnNotAnEthereumAddress"
	addWithdraw(t, stores, invalid)
	addWithdraw(t, stores, proven("valid"))

	// transient errors are retried
	s.Sweep(ctx)
	s.Sweep(ctx)
	Expect(get(t, stores, "invalid").Status).To(Equal(driver.ProofsFinalized))
	Expect(get(t, stores, "valid").Status).To(Equal(driver.ProofsFinalized))

	gateway.mu.Lock()
	gateway.err = nil
	gateway.mu.Unlock()
	s.Sweep(ctx)
	r := get(t, stores, "invalid")
	Expect(r.Status).To(Equal(driver.TransferFailed))
	Expect(r.Message).To(ContainSubstring("invalid receiver"))
	Expect(r.TransferRawTx).To(BeEmpty())
	Expect(get(t, stores, "valid").Status).To(Equal(driver.TransferPending))
	Expect(gateway.sent).To(HaveLen(1))
}

func TestServicesRunTogether(t *testing.T) {
	RegisterTestingT(t)
	stores := openStores(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	proofs := &fakeProofs{approved: map[string][]driver.Signature{"0xrequest": {{V: 28, R: "0x03", S: "0x04"}}}}
	gateway := &fakeGateway{receipts: map[string]*ethereum.Receipt{}}
	ps := NewProofsFinalizationService(stores, proofs, testOpts())
	ts := NewTransferFinalizationService(stores, gateway, testOpts())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, run := range []func(context.Context) error{ps.Run, ts.Run} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = run(ctx)
		}()
	}

	addWithdraw(t, stores, &driver.WithdrawRecord{ID: "w", IntentTxHash: "0xintent", Receiver: "0x00000000000000000000000000000000000000aa", Status: driver.IntentPending})
	Expect(stores.Transactions.Upsert(context.Background(), &driver.TransactionRecord{
		TxHash: "0xintent", Type: driver.Extrinsic, Status: driver.Committed, RequestHash: "0xrequest",
	})).To(Succeed())

	Eventually(func() driver.WithdrawStatus { return get(t, stores, "w").Status }, 5*time.Second).Should(Equal(driver.TransferPending))

	cancel()
	wg.Wait()
}
