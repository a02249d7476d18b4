/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package driver

import (
	"math/big"
	"strings"
	"time"
)

// TxStatus is the status of a transaction history item
type TxStatus int

const (
	// Pending is the status of a transaction submitted by this client and not yet seen in a block
	Pending TxStatus = iota
	// Committed is the status of a transaction whose extrinsic succeeded in a block
	Committed
	// Failed is the status of a transaction whose extrinsic failed, or that was never included
	Failed
)

var (
	// TxStatusMessage maps TxStatus to string
	TxStatusMessage = map[TxStatus]string{
		Pending:   "Pending",
		Committed: "Committed",
		Failed:    "Failed",
	}
)

func (s TxStatus) String() string {
	if m, ok := TxStatusMessage[s]; ok {
		return m
	}
	return "Unknown"
}

// IsFinal returns true for the statuses a record never leaves
func (s TxStatus) IsFinal() bool {
	return s == Committed || s == Failed
}

// TransactionType classifies an extrinsic relative to the local account
type TransactionType int

const (
	// Extrinsic is any other extrinsic signed by the account
	Extrinsic TransactionType = iota
	// Transfer moves an asset between two accounts
	Transfer
	// Migration is an Iroha to Substrate account migration
	Migration
	// Batch is a utility batch whose inner calls involve the account
	Batch
)

var TransactionTypeMessage = map[TransactionType]string{
	Extrinsic: "Extrinsic",
	Transfer:  "Transfer",
	Migration: "Migration",
	Batch:     "Batch",
}

func (t TransactionType) String() string {
	if m, ok := TransactionTypeMessage[t]; ok {
		return m
	}
	return "Unknown"
}

// TransactionRecord is an item of the local account's transaction history
type TransactionRecord struct {
	// TxHash is the hex encoded extrinsic hash, it identifies the record
	TxHash string
	// Sender is the SS58 address of the signer
	Sender string
	// Receiver is the SS58 address of the transfer destination, if any
	Receiver string
	// AssetID is the hex encoded id of the transferred asset
	AssetID string
	Amount  *big.Int
	Fee     *big.Int
	Type    TransactionType
	Status  TxStatus
	// CallPath is Module.function of the outer call
	CallPath string
	// Call is the JSON encoding of the decoded call arguments
	Call []byte
	// BlockNumber and ExtrinsicIndex are set once the extrinsic is found in a block
	BlockNumber    *uint64
	ExtrinsicIndex *uint32
	// RequestHash is the bridge request hash registered by the extrinsic, if any
	RequestHash string
	Timestamp   time.Time
}

func (t *TransactionRecord) String() string {
	var s strings.Builder
	s.WriteString("{")
	s.WriteString(t.TxHash)
	s.WriteString(" ")
	s.WriteString(t.Type.String())
	s.WriteString(" ")
	s.WriteString(t.Sender)
	s.WriteString(" ")
	s.WriteString(t.Receiver)
	s.WriteString(" ")
	s.WriteString(t.AssetID)
	s.WriteString(" ")
	if t.Amount != nil {
		s.WriteString(t.Amount.String())
	}
	s.WriteString(" ")
	s.WriteString(t.Status.String())
	s.WriteString("}")
	return s.String()
}

// QueryTransactionsParams defines the parameters for querying the transaction history
type QueryTransactionsParams struct {
	// Account matches records whose sender or receiver is the given address
	Account string
	// Statuses and Types, when not empty, restrict the result
	Statuses []TxStatus
	Types    []TransactionType
	// Before, if not zero, returns only records older than the given time
	Before time.Time
	// Limit caps the number of records, newest first. Zero means no limit.
	Limit int
}

// ChainStorageItem is the local copy of a remote storage value
type ChainStorageItem struct {
	// Key is the hex encoded local key
	Key string
	// Data is nil for an item known to be empty
	Data      []byte
	BlockHash string
}
