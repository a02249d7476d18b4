/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package api

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/substrate/codec"
)

// Transaction is the wire form of a transaction history record
type Transaction struct {
	TxHash         string    `json:"txHash"`
	Sender         string    `json:"sender"`
	Receiver       string    `json:"receiver,omitempty"`
	AssetID        string    `json:"assetId,omitempty"`
	Amount         string    `json:"amount,omitempty"`
	Fee            string    `json:"fee,omitempty"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	CallPath       string    `json:"callPath,omitempty"`
	BlockNumber    *uint64   `json:"blockNumber,omitempty"`
	ExtrinsicIndex *uint32   `json:"extrinsicIndex,omitempty"`
	RequestHash    string    `json:"requestHash,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Withdrawal is the wire form of a SORA to Ethereum transfer
type Withdrawal struct {
	ID                   string             `json:"id"`
	IntentTxHash         string             `json:"intentTxHash"`
	RequestHash          string             `json:"requestHash,omitempty"`
	TransferTxHash       string             `json:"transferTxHash,omitempty"`
	Sender               string             `json:"sender"`
	Receiver             string             `json:"receiver"`
	AssetID              string             `json:"assetId"`
	EthereumAssetAddress string             `json:"ethereumAssetAddress"`
	Amount               string             `json:"amount"`
	Fee                  string             `json:"fee,omitempty"`
	Signatures           []driver.Signature `json:"signatures,omitempty"`
	Status               string             `json:"status"`
	Message              string             `json:"message,omitempty"`
	CreatedAt            time.Time          `json:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt"`
}

// Deposit is the wire form of an Ethereum to SORA transfer
type Deposit struct {
	ID            string    `json:"id"`
	DepositTxHash string    `json:"depositTxHash"`
	RequestHash   string    `json:"requestHash,omitempty"`
	Sender        string    `json:"sender"`
	Receiver      string    `json:"receiver"`
	AssetID       string    `json:"assetId"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	Message       string    `json:"message,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type StorageItem struct {
	Key       string `json:"key"`
	Data      string `json:"data,omitempty"`
	BlockHash string `json:"blockHash,omitempty"`
}

type RegisterTransactionRequest struct {
	TxHash      string `json:"txHash" binding:"required"`
	Sender      string `json:"sender" binding:"required"`
	Receiver    string `json:"receiver"`
	AssetID     string `json:"assetId"`
	Amount      string `json:"amount"`
	Fee         string `json:"fee"`
	Type        string `json:"type"`
	CallPath    string `json:"callPath"`
	RequestHash string `json:"requestHash"`
}

type RegisterWithdrawalRequest struct {
	IntentTxHash         string `json:"intentTxHash" binding:"required"`
	Sender               string `json:"sender" binding:"required"`
	Receiver             string `json:"receiver" binding:"required"`
	AssetID              string `json:"assetId" binding:"required"`
	EthereumAssetAddress string `json:"ethereumAssetAddress" binding:"required"`
	Amount               string `json:"amount" binding:"required"`
}

type RegisterDepositRequest struct {
	DepositTxHash string `json:"depositTxHash" binding:"required"`
	Sender        string `json:"sender" binding:"required"`
	Receiver      string `json:"receiver" binding:"required"`
	AssetID       string `json:"assetId" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
}

// Error is the body of every failed request
type Error struct {
	Error string `json:"error"`
}

func toTransaction(r *driver.TransactionRecord) Transaction {
	return Transaction{
		TxHash:         r.TxHash,
		Sender:         r.Sender,
		Receiver:       r.Receiver,
		AssetID:        r.AssetID,
		Amount:         amount(r.Amount),
		Fee:            amount(r.Fee),
		Type:           r.Type.String(),
		Status:         r.Status.String(),
		CallPath:       r.CallPath,
		BlockNumber:    r.BlockNumber,
		ExtrinsicIndex: r.ExtrinsicIndex,
		RequestHash:    r.RequestHash,
		Timestamp:      r.Timestamp,
	}
}

func toWithdrawal(r *driver.WithdrawRecord) Withdrawal {
	w := Withdrawal{
		ID:                   r.ID,
		IntentTxHash:         r.IntentTxHash,
		RequestHash:          r.RequestHash,
		TransferTxHash:       r.TransferTxHash,
		Sender:               r.Sender,
		Receiver:             r.Receiver,
		AssetID:              r.AssetID,
		EthereumAssetAddress: r.EthereumAssetAddress,
		Amount:               amount(r.Amount),
		Fee:                  amount(r.Fee),
		Status:               r.Status.String(),
		Message:              r.Message,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if sigs, err := r.Signatures(); err == nil {
		w.Signatures = sigs
	} else {
		logger.Warnf("withdrawal [%s] has an invalid proof: %s", r.ID, err)
	}
	return w
}

func toDeposit(r *driver.DepositRecord) Deposit {
	return Deposit{
		ID:            r.ID,
		DepositTxHash: r.DepositTxHash,
		RequestHash:   r.RequestHash,
		Sender:        r.Sender,
		Receiver:      r.Receiver,
		AssetID:       r.AssetID,
		Amount:        amount(r.Amount),
		Status:        r.Status.String(),
		Message:       r.Message,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func toStorageItem(i *driver.ChainStorageItem) StorageItem {
	s := StorageItem{Key: i.Key, BlockHash: i.BlockHash}
	if len(i.Data) != 0 {
		s.Data = hexutil.Encode(i.Data)
	}
	return s
}

func amount(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// parseAmount accepts an empty string as no amount
func parseAmount(s string) (*big.Int, bool) {
	if len(s) == 0 {
		return nil, true
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

func parseTransactionType(s string) (driver.TransactionType, bool) {
	if len(s) == 0 {
		return driver.Extrinsic, true
	}
	for k, v := range driver.TransactionTypeMessage {
		if v == s {
			return k, true
		}
	}
	return 0, false
}

func parseTxStatus(s string) (driver.TxStatus, bool) {
	for k, v := range driver.TxStatusMessage {
		if v == s {
			return k, true
		}
	}
	return 0, false
}

const hashLength = 32

// parseHash accepts a 32-byte hash with or without the 0x prefix and returns it lower-cased and prefixed
func parseHash(s string) (string, bool) {
	h := codec.NormalizeAccountID(s)
	b, err := hexutil.Decode(h)
	if err != nil || len(b) != hashLength {
		return "", false
	}
	return h, true
}

func isEthereumAddress(s string) bool {
	return common.IsHexAddress(s)
}
