/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package deposit

import (
	"context"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/ethereum"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/events"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/soranet"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/notifier"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/sql/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) *driver.Stores {
	t.Helper()
	stores, err := sqlite.NewDriver().Open(driver.Opts{
		DataSource:  "file:" + filepath.Join(t.TempDir(), "bridge.db"),
		TablePrefix: "test",
	}, notifier.New())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, stores.Close()) })
	return stores
}

type fakeEthereum struct {
	mu       sync.Mutex
	receipts map[string]*ethereum.Receipt
	err      error
}

func (f *fakeEthereum) Receipt(_ context.Context, hash string) (*ethereum.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.ErrReceiptNotFound
	}
	return r, nil
}

type fakeSoraNet struct {
	mu       sync.Mutex
	statuses map[string]soranet.RequestStatus
	err      error
}

func (f *fakeSoraNet) Requests(_ context.Context, hashes []string, _ uint32) ([]soranet.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var res []soranet.Request
	for _, h := range hashes {
		if s, ok := f.statuses[h]; ok {
			res = append(res, soranet.Request{Status: s})
		}
	}
	return res, nil
}

func testOpts() Opts {
	return Opts{
		Confirmations:  2,
		DepositTimeout: 2 * time.Hour,
		PollInterval:   time.Hour,
		Parallelism:    4,
	}
}

func add(t *testing.T, stores *driver.Stores, id, hash string, status driver.DepositStatus) {
	require.NoError(t, stores.Deposits.Add(context.Background(), &driver.DepositRecord{
		ID: id, DepositTxHash: hash, Sender: "0xsender", Receiver: "cnReceiver",
		AssetID: "0x02", Amount: big.NewInt(5), Status: status,
	}))
}

func status(t *testing.T, stores *driver.Stores, id string) driver.DepositStatus {
	r, err := stores.Deposits.Get(context.Background(), id)
	require.NoError(t, err)
	return r.Status
}

func TestDepositFinalization(t *testing.T) {
	ctx := context.Background()
	stores := openStores(t)
	eth := &fakeEthereum{receipts: map[string]*ethereum.Receipt{}}
	sora := &fakeSoraNet{statuses: map[string]soranet.RequestStatus{}}
	center := events.NewService()
	updates := make(chan events.Event, 10)
	center.Subscribe(events.DepositUpdated, updates)

	opts := testOpts()
	opts.Publisher = center
	s := NewFinalizationService(stores, eth, sora, opts)

	add(t, stores, "ok", "0x01", driver.DepositPending)
	add(t, stores, "reverted", "0x02", driver.DepositPending)
	add(t, stores, "broken", "0x03", driver.DepositPending)

	s.Sweep(ctx)
	assert.Equal(t, driver.DepositPending, status(t, stores, "ok"))

	eth.receipts["0x01"] = &ethereum.Receipt{Success: true, Confirmations: 1}
	eth.receipts["0x02"] = &ethereum.Receipt{Success: false, Confirmations: 5}
	eth.receipts["0x03"] = &ethereum.Receipt{Success: true, Confirmations: 5}
	s.Sweep(ctx)
	assert.Equal(t, driver.DepositPending, status(t, stores, "ok"))
	assert.Equal(t, driver.DepositFailed, status(t, stores, "reverted"))
	assert.Equal(t, driver.DepositReceived, status(t, stores, "broken"))

	eth.receipts["0x01"].Confirmations = 2
	s.Sweep(ctx)
	assert.Equal(t, driver.DepositReceived, status(t, stores, "ok"))
	r, err := stores.Deposits.Get(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, "0x01", r.RequestHash)

	// SORA has not seen the requests yet
	s.Sweep(ctx)
	assert.Equal(t, driver.DepositReceived, status(t, stores, "ok"))

	sora.statuses["0x01"] = soranet.Pending
	sora.statuses["0x03"] = soranet.Broken
	s.Sweep(ctx)
	assert.Equal(t, driver.DepositReceived, status(t, stores, "ok"))
	assert.Equal(t, driver.DepositTransferFailed, status(t, stores, "broken"))

	sora.statuses["0x01"] = soranet.Done
	s.Sweep(ctx)
	assert.Equal(t, driver.DepositTransferCompleted, status(t, stores, "ok"))

	published := map[string]driver.DepositStatus{}
	for len(updates) > 0 {
		e := <-updates
		d := e.Payload.(*driver.DepositRecord)
		published[d.ID] = d.Status
	}
	assert.Equal(t, map[string]driver.DepositStatus{
		"ok":       driver.DepositTransferCompleted,
		"reverted": driver.DepositFailed,
		"broken":   driver.DepositTransferFailed,
	}, published)
}

func TestDepositTimeouts(t *testing.T) {
	ctx := context.Background()
	stores := openStores(t)
	eth := &fakeEthereum{receipts: map[string]*ethereum.Receipt{"0x02": {Success: true, Confirmations: 9}}}
	sora := &fakeSoraNet{statuses: map[string]soranet.RequestStatus{}}
	s := NewFinalizationService(stores, eth, sora, testOpts())

	add(t, stores, "unmined", "0x01", driver.DepositPending)
	add(t, stores, "unprocessed", "0x02", driver.DepositPending)
	s.Sweep(ctx)
	assert.Equal(t, driver.DepositPending, status(t, stores, "unmined"))
	assert.Equal(t, driver.DepositReceived, status(t, stores, "unprocessed"))

	s.now = func() time.Time { return time.Now().Add(3 * time.Hour) }
	s.Sweep(ctx)
	assert.Equal(t, driver.DepositFailed, status(t, stores, "unmined"))
	assert.Equal(t, driver.DepositTransferFailed, status(t, stores, "unprocessed"))
}

func TestDepositRemoteErrorIsRetried(t *testing.T) {
	ctx := context.Background()
	stores := openStores(t)
	eth := &fakeEthereum{receipts: map[string]*ethereum.Receipt{"0x01": {Success: true, Confirmations: 9}}}
	sora := &fakeSoraNet{statuses: map[string]soranet.RequestStatus{"0x01": soranet.Done}, err: errors.New("unavailable")}
	s := NewFinalizationService(stores, eth, sora, testOpts())
	add(t, stores, "d", "0x01", driver.DepositPending)

	s.Sweep(ctx)
	s.Sweep(ctx)
	assert.Equal(t, driver.DepositReceived, status(t, stores, "d"))

	sora.err = nil
	s.Sweep(ctx)
	assert.Equal(t, driver.DepositTransferCompleted, status(t, stores, "d"))
}

func TestDepositTimeoutWhileRemoteIsFailing(t *testing.T) {
	ctx := context.Background()
	stores := openStores(t)
	eth := &fakeEthereum{receipts: map[string]*ethereum.Receipt{"0x01": {Success: true, Confirmations: 9}}}
	sora := &fakeSoraNet{err: errors.New("decode failure")}
	s := NewFinalizationService(stores, eth, sora, testOpts())
	add(t, stores, "received", "0x01", driver.DepositPending)
	s.Sweep(ctx)
	require.Equal(t, driver.DepositReceived, status(t, stores, "received"))

	eth.err = errors.New("connection refused")
	add(t, stores, "pending", "0x02", driver.DepositPending)

	s.Sweep(ctx)
	assert.Equal(t, driver.DepositReceived, status(t, stores, "received"))
	assert.Equal(t, driver.DepositPending, status(t, stores, "pending"))

	s.now = func() time.Time { return time.Now().Add(100 * time.Hour) }
	s.Sweep(ctx)
	assert.Equal(t, driver.DepositTransferFailed, status(t, stores, "received"))
	assert.Equal(t, driver.DepositFailed, status(t, stores, "pending"))

	r, err := stores.Deposits.Get(ctx, "received")
	require.NoError(t, err)
	assert.Equal(t, "request not completed in time", r.Message)
}
