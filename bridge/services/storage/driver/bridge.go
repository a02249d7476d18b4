/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package driver

import (
	"encoding/json"
	"math/big"
	"time"
)

// WithdrawStatus is the stage of a SORA to Ethereum transfer
type WithdrawStatus int

const (
	// IntentPending waits for the intent extrinsic to be included in a block
	IntentPending WithdrawStatus = iota
	// IntentFinalized waits for the bridge peers to approve the request
	IntentFinalized
	IntentFailed
	// ProofsFinalized holds the approvals and waits for the Ethereum transaction to be sent
	ProofsFinalized
	ProofsFailed
	// TransferPending waits for the Ethereum transaction to be mined and confirmed
	TransferPending
	TransferCompleted
	TransferFailed
)

var WithdrawStatusMessage = map[WithdrawStatus]string{
	IntentPending:     "IntentPending",
	IntentFinalized:   "IntentFinalized",
	IntentFailed:      "IntentFailed",
	ProofsFinalized:   "ProofsFinalized",
	ProofsFailed:      "ProofsFailed",
	TransferPending:   "TransferPending",
	TransferCompleted: "TransferCompleted",
	TransferFailed:    "TransferFailed",
}

func (s WithdrawStatus) String() string {
	if m, ok := WithdrawStatusMessage[s]; ok {
		return m
	}
	return "Unknown"
}

func (s WithdrawStatus) IsFinal() bool {
	switch s {
	case IntentFailed, ProofsFailed, TransferCompleted, TransferFailed:
		return true
	default:
		return false
	}
}

// ParseWithdrawStatus returns the status with the given name
func ParseWithdrawStatus(s string) (WithdrawStatus, bool) {
	for k, v := range WithdrawStatusMessage {
		if v == s {
			return k, true
		}
	}
	return 0, false
}

// Signature is one bridge peer approval of a withdraw request
type Signature struct {
	V uint8  `json:"v"`
	R string `json:"r"`
	S string `json:"s"`
}

// WithdrawRecord tracks a SORA to Ethereum transfer
type WithdrawRecord struct {
	ID string
	// IntentTxHash is the hash of the SORA extrinsic that burned the asset
	IntentTxHash string
	// RequestHash is the bridge request registered by the intent
	RequestHash string
	// TransferTxHash is the Ethereum transaction that releases the asset
	TransferTxHash string
	// TransferRawTx is the signed Ethereum transaction, kept for rebroadcast
	TransferRawTx        []byte
	Sender               string
	Receiver             string
	AssetID              string
	EthereumAssetAddress string
	Amount               *big.Int
	Fee                  *big.Int
	// Proof is the JSON list of Signature
	Proof     json.RawMessage
	Status    WithdrawStatus
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Signatures decodes the stored proof
func (r *WithdrawRecord) Signatures() ([]Signature, error) {
	if len(r.Proof) == 0 {
		return nil, nil
	}
	var sigs []Signature
	if err := json.Unmarshal(r.Proof, &sigs); err != nil {
		return nil, err
	}
	return sigs, nil
}

// DepositStatus is the stage of an Ethereum to SORA transfer
type DepositStatus int

const (
	// DepositPending waits for the Ethereum deposit to be mined and confirmed
	DepositPending DepositStatus = iota
	// DepositReceived waits for the SORA side to import the request
	DepositReceived
	DepositFailed
	DepositTransferCompleted
	DepositTransferFailed
)

var DepositStatusMessage = map[DepositStatus]string{
	DepositPending:           "DepositPending",
	DepositReceived:          "DepositReceived",
	DepositFailed:            "DepositFailed",
	DepositTransferCompleted: "TransferCompleted",
	DepositTransferFailed:    "TransferFailed",
}

func (s DepositStatus) String() string {
	if m, ok := DepositStatusMessage[s]; ok {
		return m
	}
	return "Unknown"
}

func (s DepositStatus) IsFinal() bool {
	return s == DepositFailed || s == DepositTransferCompleted || s == DepositTransferFailed
}

func ParseDepositStatus(s string) (DepositStatus, bool) {
	for k, v := range DepositStatusMessage {
		if v == s {
			return k, true
		}
	}
	return 0, false
}

// DepositRecord tracks an Ethereum to SORA transfer
type DepositRecord struct {
	ID string
	// DepositTxHash is the Ethereum transaction that locked the asset
	DepositTxHash string
	// RequestHash is the SORA side request, known once the bridge imported it
	RequestHash string
	Sender      string
	Receiver    string
	AssetID     string
	Amount      *big.Int
	Status      DepositStatus
	Message     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
