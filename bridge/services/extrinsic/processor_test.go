/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package extrinsic

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/substrate/codec"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/substrate/keys"
)

const (
	xor   = "0x0200000000000000000000000000000000000000000000000000000000000000"
	val   = "0x0200040000000000000000000000000000000000000000000000000000000000"
	alice = "0xd43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
	bob   = "0x8eaf04151687736326c9fea17e25fc5287613693c912909cb226aa4794f26a48"
	carol = "0x90b5ab205c6974c9ea841be688864633dc9ca8a357843eeacf2314649965fe22"
)

func address(hex string) string {
	raw, err := keys.FromHex(hex)
	Expect(err).ToNot(HaveOccurred())
	a, err := keys.EncodeAddress(raw, keys.SoraPrefix)
	Expect(err).ToNot(HaveOccurred())
	return a
}

func outcome(index uint32, success bool, extra ...*codec.Event) []*codec.Event {
	name := "ExtrinsicSuccess"
	if !success {
		name = "ExtrinsicFailed"
	}
	return append(extra, &codec.Event{Phase: codec.ApplyExtrinsic, ExtrinsicIndex: index, Module: "System", Name: name})
}

func assetsTransfer(signer, to string, amount string) *codec.Extrinsic {
	return &codec.Extrinsic{
		Hash:   "0xfeed",
		Signer: signer,
		Call: codec.Call{Module: "Assets", Function: "transfer", Params: []codec.Param{
			{Name: "asset_id", Type: "AssetId", Value: map[string]any{"code": val}},
			{Name: "to", Type: "AccountId", Value: strings.TrimPrefix(to, "0x")},
			{Name: "amount", Type: "Balance", Value: json.Number(amount)},
		}},
	}
}

func TestTransferSent(t *testing.T) {
	RegisterTestingT(t)

	p := NewProcessor(keys.SoraPrefix, xor)
	events := outcome(1, true,
		&codec.Event{Phase: codec.ApplyExtrinsic, ExtrinsicIndex: 1, Module: "XorFee", Name: "FeeWithdrawn", Params: []codec.Param{{Value: alice}, {Value: "700000000000000"}}},
		&codec.Event{Phase: codec.ApplyExtrinsic, ExtrinsicIndex: 0, Module: "XorFee", Name: "FeeWithdrawn", Params: []codec.Param{{Value: carol}, {Value: "1"}}},
	)

	r := p.Process(1, assetsTransfer(alice, bob, "1000"), events, alice)
	Expect(r).ToNot(BeNil())
	Expect(r.Type).To(Equal(driver.Transfer))
	Expect(r.Success).To(BeTrue())
	Expect(r.Fee).To(Equal(big.NewInt(700000000000000)))
	Expect(r.Amount).To(Equal(big.NewInt(1000)))
	Expect(r.AssetID).To(Equal(val))
	Expect(r.Sender).To(Equal(address(alice)))
	Expect(r.Receiver).To(Equal(address(bob)))
	Expect(r.CallPath).To(Equal("Assets.transfer"))
	Expect(r.ExtrinsicIndex).To(Equal(uint32(1)))

	rec := r.Record()
	Expect(rec.Status).To(Equal(driver.Committed))
	Expect(*rec.ExtrinsicIndex).To(Equal(uint32(1)))
}

func TestTransferReceivedAndUnrelated(t *testing.T) {
	RegisterTestingT(t)

	p := NewProcessor(keys.SoraPrefix, xor)
	ext := assetsTransfer(alice, bob, "5")

	r := p.Process(0, ext, outcome(0, false), bob)
	Expect(r).ToNot(BeNil())
	Expect(r.Success).To(BeFalse())
	Expect(r.Record().Status).To(Equal(driver.Failed))
	Expect(r.Fee.Sign()).To(BeZero())

	Expect(p.Process(0, ext, outcome(0, true), carol)).To(BeNil())
}

func TestBalancesTransferUsesNativeAsset(t *testing.T) {
	RegisterTestingT(t)

	p := NewProcessor(keys.SoraPrefix, xor)
	ext := &codec.Extrinsic{Hash: "0x01", Signer: alice, Call: codec.Call{Module: "Balances", Function: "transfer_keep_alive", Params: []codec.Param{
		{Name: "dest", Value: map[string]any{"Id": bob}},
		{Name: "value", Value: "42"},
	}}}
	events := outcome(3, true, &codec.Event{Phase: codec.ApplyExtrinsic, ExtrinsicIndex: 3, Module: "TransactionPayment", Name: "TransactionFeePaid", Params: []codec.Param{{Value: alice}, {Value: "9"}, {Value: "0"}}})
	r := p.Process(3, ext, events, alice)
	Expect(r.Type).To(Equal(driver.Transfer))
	Expect(r.AssetID).To(Equal(xor))
	Expect(r.Amount).To(Equal(big.NewInt(42)))
	Expect(r.Fee).To(Equal(big.NewInt(9)))
}

func TestMigrationAndGeneric(t *testing.T) {
	RegisterTestingT(t)

	p := NewProcessor(keys.SoraPrefix, xor)
	migrate := &codec.Extrinsic{Hash: "0x02", Signer: alice, Call: codec.Call{Module: "IrohaMigration", Function: "migrate"}}
	Expect(p.Process(0, migrate, outcome(0, true), alice).Type).To(Equal(driver.Migration))
	Expect(p.Process(0, migrate, outcome(0, true), bob)).To(BeNil())

	swap := &codec.Extrinsic{Hash: "0x03", Signer: alice, Call: codec.Call{Module: "LiquidityProxy", Function: "swap"}}
	r := p.Process(0, swap, outcome(0, true), alice)
	Expect(r.Type).To(Equal(driver.Extrinsic))
	Expect(p.Process(0, swap, outcome(0, true), bob)).To(BeNil())

	unsigned := &codec.Extrinsic{Hash: "0x04", Call: codec.Call{Module: "Timestamp", Function: "set"}}
	Expect(p.Process(0, unsigned, nil, alice)).To(BeNil())
}

func TestBatch(t *testing.T) {
	RegisterTestingT(t)

	inner := func(to, amount string) map[string]any {
		return map[string]any{
			"call_module":   "Assets",
			"call_function": "transfer",
			"call_args": []any{
				map[string]any{"name": "asset_id", "type": "AssetId", "value": xor},
				map[string]any{"name": "to", "type": "AccountId", "value": to},
				map[string]any{"name": "amount", "type": "Balance", "value": json.Number(amount)},
			},
		}
	}
	batch := &codec.Extrinsic{Hash: "0x05", Signer: alice, Call: codec.Call{Module: "Utility", Function: "batch_all", Params: []codec.Param{
		{Name: "calls", Value: []any{inner(bob, "10"), inner(carol, "20"), inner(bob, "5")}},
	}}}

	p := NewProcessor(keys.SoraPrefix, xor)
	r := p.Process(2, batch, outcome(2, true), alice)
	Expect(r.Type).To(Equal(driver.Batch))
	Expect(r.Amount).To(Equal(big.NewInt(35)))
	Expect(r.Receiver).To(BeEmpty())

	r = p.Process(2, batch, outcome(2, true), bob)
	Expect(r.Type).To(Equal(driver.Batch))
	Expect(r.Amount).To(Equal(big.NewInt(15)))
	Expect(r.Receiver).To(Equal(address(bob)))
	Expect(r.AssetID).To(Equal(xor))

	Expect(p.Process(2, batch, outcome(2, true), "0x"+strings.Repeat("11", 32))).To(BeNil())
}

func TestRequestHash(t *testing.T) {
	RegisterTestingT(t)

	p := NewProcessor(keys.SoraPrefix, xor)
	burn := &codec.Extrinsic{Hash: "0x06", Signer: alice, Call: codec.Call{Module: "EthBridge", Function: "transfer_to_sidechain"}}
	events := outcome(4, true, &codec.Event{Phase: codec.ApplyExtrinsic, ExtrinsicIndex: 4, Module: "EthBridge", Name: "RequestRegistered", Params: []codec.Param{{Value: "0xreq"}}})
	r := p.Process(4, burn, events, alice)
	Expect(r.RequestHash).To(Equal("0xreq"))
	Expect(r.Record().RequestHash).To(Equal("0xreq"))
}
