/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package extrinsic

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/substrate/codec"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/substrate/keys"
)

var logger = logging.MustGetLogger("extrinsic")

// Result is the outcome of an extrinsic relevant to the local account
type Result struct {
	TxHash         string
	ExtrinsicIndex uint32
	Type           driver.TransactionType
	Success        bool
	Fee            *big.Int
	// Sender and Receiver are SS58 addresses
	Sender   string
	Receiver string
	AssetID  string
	Amount   *big.Int
	CallPath string
	// Call is the JSON encoding of the call arguments
	Call []byte
	// RequestHash is set when the extrinsic registered a bridge request
	RequestHash string
}

// Record converts the result to a transaction history record
func (r *Result) Record() *driver.TransactionRecord {
	status := driver.Committed
	if !r.Success {
		status = driver.Failed
	}
	index := r.ExtrinsicIndex
	return &driver.TransactionRecord{
		TxHash:         r.TxHash,
		Sender:         r.Sender,
		Receiver:       r.Receiver,
		AssetID:        r.AssetID,
		Amount:         r.Amount,
		Fee:            r.Fee,
		Type:           r.Type,
		Status:         status,
		CallPath:       r.CallPath,
		Call:           r.Call,
		ExtrinsicIndex: &index,
		RequestHash:    r.RequestHash,
	}
}

// Processor classifies extrinsics against a local account
type Processor struct {
	prefix        uint16
	nativeAssetID string
}

func NewProcessor(ss58Prefix uint16, nativeAssetID string) *Processor {
	return &Processor{prefix: ss58Prefix, nativeAssetID: nativeAssetID}
}

// Process returns the result of the extrinsic at index for accountID (hex), or nil if the
// extrinsic is unsigned or does not involve the account. events are all the events of the block.
func (p *Processor) Process(index uint32, ext *codec.Extrinsic, events []*codec.Event, accountID string) *Result {
	if ext == nil || !ext.Signed() {
		return nil
	}
	account := codec.NormalizeAccountID(accountID)
	own := extrinsicEvents(index, events)

	var result *Result
	switch {
	case isTransfer(&ext.Call):
		result = p.processTransfer(ext, account)
	case ext.Call.Is("IrohaMigration", "migrate"):
		if ext.Signer == account {
			result = &Result{Type: driver.Migration, Amount: big.NewInt(0)}
		}
	case ext.Call.Is("Utility", "batch"), ext.Call.Is("Utility", "batch_all"):
		result = p.processBatch(ext, account)
	default:
		if ext.Signer == account {
			result = &Result{Type: driver.Extrinsic, Amount: big.NewInt(0)}
		}
	}
	if result == nil {
		return nil
	}

	result.TxHash = ext.Hash
	result.ExtrinsicIndex = index
	result.Success = succeeded(own)
	result.Fee = fee(own)
	result.RequestHash = requestHash(own)
	result.CallPath = ext.Call.Path()
	result.Sender = p.address(ext.Signer)
	if call, err := json.Marshal(ext.Call.Params); err == nil {
		result.Call = call
	} else {
		logger.Warnf("failed encoding call of [%s]: %s", ext.Hash, err)
	}
	logger.Debugf("extrinsic [%s] at [%d] is [%s], success [%v]", ext.Hash, index, result.Type, result.Success)
	return result
}

func (p *Processor) processTransfer(ext *codec.Extrinsic, account string) *Result {
	t, ok := p.transfer(&ext.Call)
	if !ok {
		return nil
	}
	if ext.Signer != account && t.receiver != account {
		return nil
	}
	return &Result{
		Type:     driver.Transfer,
		Receiver: p.address(t.receiver),
		AssetID:  t.assetID,
		Amount:   t.amount,
	}
}

func (p *Processor) processBatch(ext *codec.Extrinsic, account string) *Result {
	signer := ext.Signer == account
	total := big.NewInt(0)
	involved := false
	var assetID, receiver string
	for _, call := range innerCalls(&ext.Call) {
		t, ok := p.transfer(&call)
		if !ok {
			continue
		}
		if !signer && t.receiver != account {
			continue
		}
		involved = true
		total.Add(total, t.amount)
		if len(assetID) == 0 {
			assetID = t.assetID
		}
		switch {
		case len(receiver) == 0:
			receiver = t.receiver
		case receiver != t.receiver:
			receiver = "*"
		}
	}
	if !signer && !involved {
		return nil
	}
	if receiver == "*" {
		receiver = ""
	}
	return &Result{
		Type:     driver.Batch,
		Receiver: p.address(receiver),
		AssetID:  assetID,
		Amount:   total,
	}
}

type transfer struct {
	assetID  string
	receiver string
	amount   *big.Int
}

func isTransfer(c *codec.Call) bool {
	if c.Is("Assets", "transfer") {
		return true
	}
	if !strings.EqualFold(c.Module, "Balances") {
		return false
	}
	switch strings.ToLower(c.Function) {
	case "transfer", "transfer_keep_alive", "transfer_allow_death":
		return true
	}
	return false
}

func (p *Processor) transfer(c *codec.Call) (*transfer, bool) {
	if !isTransfer(c) {
		return nil, false
	}
	var t transfer
	var amount any
	if c.Is("Assets", "transfer") {
		assetID, _ := c.Param("asset_id")
		to, _ := c.Param("to")
		amount, _ = c.Param("amount")
		t.assetID = codec.AsString(assetID)
		t.receiver = codec.NormalizeAccountID(codec.AsString(to))
	} else {
		dest, _ := c.Param("dest")
		amount, _ = c.Param("value")
		t.assetID = p.nativeAssetID
		t.receiver = codec.NormalizeAccountID(codec.AsString(dest))
	}
	n, ok := codec.AsBigInt(amount)
	if !ok {
		n = big.NewInt(0)
	}
	t.amount = n
	return &t, true
}

// innerCalls decodes the calls argument of a utility batch
func innerCalls(c *codec.Call) []codec.Call {
	raw, ok := c.Param("calls")
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	calls := make([]codec.Call, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		call := codec.Call{
			Module:   firstString(m, "call_module", "module"),
			Function: firstString(m, "call_function", "call_module_function", "call_name", "function"),
		}
		args, _ := m["call_args"].([]any)
		if args == nil {
			args, _ = m["params"].([]any)
		}
		for _, a := range args {
			am, ok := a.(map[string]any)
			if !ok {
				continue
			}
			call.Params = append(call.Params, codec.Param{
				Name:  codec.AsString(am["name"]),
				Type:  codec.AsString(am["type"]),
				Value: am["value"],
			})
		}
		calls = append(calls, call)
	}
	return calls
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && len(v) != 0 {
			return v
		}
	}
	return ""
}

func extrinsicEvents(index uint32, events []*codec.Event) []*codec.Event {
	var res []*codec.Event
	for _, e := range events {
		if e.Phase == codec.ApplyExtrinsic && e.ExtrinsicIndex == index {
			res = append(res, e)
		}
	}
	return res
}

func succeeded(events []*codec.Event) bool {
	for _, e := range events {
		if e.Is("System", "ExtrinsicSuccess") {
			return true
		}
		if e.Is("System", "ExtrinsicFailed") {
			return false
		}
	}
	return false
}

func fee(events []*codec.Event) *big.Int {
	for _, e := range events {
		if e.Is("XorFee", "FeeWithdrawn") {
			if v, ok := e.Arg(1); ok {
				if n, ok := codec.AsBigInt(v); ok {
					return n
				}
			}
		}
	}
	for _, e := range events {
		if e.Is("TransactionPayment", "TransactionFeePaid") {
			if v, ok := e.Arg(1); ok {
				if n, ok := codec.AsBigInt(v); ok {
					return n
				}
			}
		}
	}
	return big.NewInt(0)
}

func requestHash(events []*codec.Event) string {
	for _, e := range events {
		if e.Is("EthBridge", "RequestRegistered") {
			if v, ok := e.Arg(0); ok {
				return codec.AsString(v)
			}
		}
	}
	return ""
}

func (p *Processor) address(accountID string) string {
	if len(accountID) == 0 {
		return ""
	}
	raw, err := keys.FromHex(accountID)
	if err != nil {
		return accountID
	}
	address, err := keys.EncodeAddress(raw, p.prefix)
	if err != nil {
		return accountID
	}
	return address
}
