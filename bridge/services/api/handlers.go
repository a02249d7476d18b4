/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-uuid"
	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/substrate/codec"
)

const maxLimit = 500

func newID() (string, error) {
	return uuid.GenerateUUID()
}

// registerTransaction records a transaction submitted by the client as pending.
// The transaction subscription completes it once the extrinsic is found in a block.
func (s *Server) registerTransaction(c *gin.Context) {
	var req RegisterTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	txType, ok := parseTransactionType(req.Type)
	if !ok {
		abort(c, http.StatusBadRequest, errors.Errorf("invalid transaction type [%s]", req.Type))
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		abort(c, http.StatusBadRequest, errors.Errorf("invalid amount [%s]", req.Amount))
		return
	}
	fee, ok := parseAmount(req.Fee)
	if !ok {
		abort(c, http.StatusBadRequest, errors.Errorf("invalid fee [%s]", req.Fee))
		return
	}
	hash, ok := parseHash(req.TxHash)
	if !ok {
		abort(c, http.StatusBadRequest, errors.Errorf("invalid transaction hash [%s]", req.TxHash))
		return
	}
	r := &driver.TransactionRecord{
		TxHash:      hash,
		Sender:      req.Sender,
		Receiver:    req.Receiver,
		AssetID:     req.AssetID,
		Amount:      amount,
		Fee:         fee,
		Type:        txType,
		Status:      driver.Pending,
		CallPath:    req.CallPath,
		RequestHash: req.RequestHash,
		Timestamp:   s.now(),
	}
	if err := s.stores.Transactions.Upsert(c.Request.Context(), r); err != nil {
		storeError(c, err)
		return
	}
	stored, err := s.stores.Transactions.Get(c.Request.Context(), r.TxHash)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTransaction(stored))
}

func (s *Server) getTransaction(c *gin.Context) {
	r, err := s.stores.Transactions.Get(c.Request.Context(), codec.NormalizeAccountID(c.Param("hash")))
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTransaction(r))
}

// queryTransactions supports account, status, type (repeatable), before (RFC3339) and limit
func (s *Server) queryTransactions(c *gin.Context) {
	params := driver.QueryTransactionsParams{Account: c.Query("account")}
	for _, v := range c.QueryArray("status") {
		st, ok := parseTxStatus(v)
		if !ok {
			abort(c, http.StatusBadRequest, errors.Errorf("invalid status [%s]", v))
			return
		}
		params.Statuses = append(params.Statuses, st)
	}
	for _, v := range c.QueryArray("type") {
		t, ok := parseTransactionType(v)
		if !ok || len(v) == 0 {
			abort(c, http.StatusBadRequest, errors.Errorf("invalid type [%s]", v))
			return
		}
		params.Types = append(params.Types, t)
	}
	if v := c.Query("before"); len(v) != 0 {
		before, err := time.Parse(time.RFC3339, v)
		if err != nil {
			abort(c, http.StatusBadRequest, errors.Wrapf(err, "invalid before [%s]", v))
			return
		}
		params.Before = before
	}
	limit, err := parseLimit(c)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	params.Limit = limit

	records, err := s.stores.Transactions.Query(c.Request.Context(), params)
	if err != nil {
		storeError(c, err)
		return
	}
	res := make([]Transaction, len(records))
	for i, r := range records {
		res[i] = toTransaction(r)
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) registerWithdrawal(c *gin.Context) {
	var req RegisterWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok || amount == nil || amount.Sign() == 0 {
		abort(c, http.StatusBadRequest, errors.Errorf("invalid amount [%s]", req.Amount))
		return
	}
	hash, ok := parseHash(req.IntentTxHash)
	if !ok {
		abort(c, http.StatusBadRequest, errors.Errorf("invalid intent transaction hash [%s]", req.IntentTxHash))
		return
	}
	if !isEthereumAddress(req.Receiver) {
		abort(c, http.StatusBadRequest, errors.Errorf("invalid receiver [%s]", req.Receiver))
		return
	}
	if !isEthereumAddress(req.EthereumAssetAddress) {
		abort(c, http.StatusBadRequest, errors.Errorf("invalid ethereum asset address [%s]", req.EthereumAssetAddress))
		return
	}
	id, err := s.newID()
	if err != nil {
		abort(c, http.StatusInternalServerError, errors.Wrapf(err, "failed generating id"))
		return
	}
	r := &driver.WithdrawRecord{
		ID:                   id,
		IntentTxHash:         hash,
		Sender:               req.Sender,
		Receiver:             req.Receiver,
		AssetID:              req.AssetID,
		EthereumAssetAddress: req.EthereumAssetAddress,
		Amount:               amount,
		Status:               driver.IntentPending,
	}
	if err := s.stores.Withdrawals.Add(c.Request.Context(), r); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toWithdrawal(r))
}

func (s *Server) getWithdrawal(c *gin.Context) {
	r, err := s.stores.Withdrawals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toWithdrawal(r))
}

func (s *Server) queryWithdrawals(c *gin.Context) {
	var statuses []driver.WithdrawStatus
	for _, v := range c.QueryArray("status") {
		st, ok := driver.ParseWithdrawStatus(v)
		if !ok {
			abort(c, http.StatusBadRequest, errors.Errorf("invalid status [%s]", v))
			return
		}
		statuses = append(statuses, st)
	}
	records, err := s.stores.Withdrawals.QueryByStatus(c.Request.Context(), statuses...)
	if err != nil {
		storeError(c, err)
		return
	}
	res := make([]Withdrawal, len(records))
	for i, r := range records {
		res[i] = toWithdrawal(r)
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) registerDeposit(c *gin.Context) {
	var req RegisterDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok || amount == nil || amount.Sign() == 0 {
		abort(c, http.StatusBadRequest, errors.Errorf("invalid amount [%s]", req.Amount))
		return
	}
	hash, ok := parseHash(req.DepositTxHash)
	if !ok {
		abort(c, http.StatusBadRequest, errors.Errorf("invalid deposit transaction hash [%s]", req.DepositTxHash))
		return
	}
	if !isEthereumAddress(req.Sender) {
		abort(c, http.StatusBadRequest, errors.Errorf("invalid sender [%s]", req.Sender))
		return
	}
	id, err := s.newID()
	if err != nil {
		abort(c, http.StatusInternalServerError, errors.Wrapf(err, "failed generating id"))
		return
	}
	r := &driver.DepositRecord{
		ID:            id,
		DepositTxHash: hash,
		Sender:        req.Sender,
		Receiver:      req.Receiver,
		AssetID:       req.AssetID,
		Amount:        amount,
		Status:        driver.DepositPending,
	}
	if err := s.stores.Deposits.Add(c.Request.Context(), r); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toDeposit(r))
}

func (s *Server) getDeposit(c *gin.Context) {
	r, err := s.stores.Deposits.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDeposit(r))
}

func (s *Server) queryDeposits(c *gin.Context) {
	var statuses []driver.DepositStatus
	for _, v := range c.QueryArray("status") {
		st, ok := driver.ParseDepositStatus(v)
		if !ok {
			abort(c, http.StatusBadRequest, errors.Errorf("invalid status [%s]", v))
			return
		}
		statuses = append(statuses, st)
	}
	records, err := s.stores.Deposits.QueryByStatus(c.Request.Context(), statuses...)
	if err != nil {
		storeError(c, err)
		return
	}
	res := make([]Deposit, len(records))
	for i, r := range records {
		res[i] = toDeposit(r)
	}
	c.JSON(http.StatusOK, res)
}

// getStorageItem returns 404 for unknown keys and an item without data for keys known to be empty
func (s *Server) getStorageItem(c *gin.Context) {
	key := strings.ToLower(c.Param("key"))
	item, err := s.stores.Storage.Get(c.Request.Context(), key)
	if err != nil {
		storeError(c, err)
		return
	}
	if item == nil {
		abort(c, http.StatusNotFound, errors.Errorf("storage item [%s] not found", key))
		return
	}
	c.JSON(http.StatusOK, toStorageItem(item))
}

func parseLimit(c *gin.Context) (int, error) {
	v := c.Query("limit")
	if len(v) == 0 {
		return maxLimit, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit <= 0 {
		return 0, errors.Errorf("invalid limit [%s]", v)
	}
	return min(limit, maxLimit), nil
}
