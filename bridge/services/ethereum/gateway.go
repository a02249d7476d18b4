/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ethereum

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/config"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
)

var logger = logging.MustGetLogger("ethereum")

var (
	// ErrReceiptNotFound is returned while the transaction is not mined
	ErrReceiptNotFound = errors.New("receipt not found")
	// ErrNoSigner is returned when a withdrawal is submitted without a configured key
	ErrNoSigner = errors.New("no private key configured")
	// ErrInvalidWithdrawal is returned when a withdrawal record can never be packed into a bridge call
	ErrInvalidWithdrawal = errors.New("invalid withdrawal")
)

// Backend is the part of the Ethereum client the gateway uses. *ethclient.Client satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg goethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Receipt is the outcome of a mined transaction
type Receipt struct {
	TxHash        string
	Success       bool
	BlockNumber   uint64
	Confirmations uint64
}

// Gateway submits withdrawals to the bridge contract and tracks Ethereum transactions
type Gateway struct {
	backend  Backend
	contract common.Address
	chainID  *big.Int
	gasLimit uint64
	key      *ecdsa.PrivateKey
	from     common.Address
	abi      abi.ABI
}

// Dial connects to the configured endpoint
func Dial(ctx context.Context, c config.EthereumConfig) (*Gateway, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, c.Endpoint)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed dialing [%s]", c.Endpoint)
	}
	g, err := NewGateway(client, c)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return g, client, nil
}

func NewGateway(backend Backend, c config.EthereumConfig) (*Gateway, error) {
	parsed, err := abi.JSON(strings.NewReader(bridgeABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed parsing bridge abi")
	}
	g := &Gateway{
		backend:  backend,
		contract: common.HexToAddress(c.BridgeContract),
		chainID:  big.NewInt(c.ChainID),
		gasLimit: c.GasLimit,
		abi:      parsed,
	}
	if len(c.PrivateKey) != 0 {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(c.PrivateKey, "0x"))
		if err != nil {
			return nil, errors.Wrap(err, "invalid private key")
		}
		g.key = key
		g.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return g, nil
}

// Address returns the account signing the withdrawals
func (g *Gateway) Address() common.Address {
	return g.from
}

func (g *Gateway) CanSign() bool {
	return g.key != nil
}

// PrepareWithdrawal builds and signs the bridge call releasing the asset of the record
func (g *Gateway) PrepareWithdrawal(ctx context.Context, r *driver.WithdrawRecord) (*types.Transaction, error) {
	if g.key == nil {
		return nil, ErrNoSigner
	}
	data, err := g.packWithdrawal(r)
	if err != nil {
		return nil, err
	}

	nonce, err := g.backend.PendingNonceAt(ctx, g.from)
	if err != nil {
		return nil, errors.Wrap(err, "failed getting nonce")
	}
	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed getting gas price")
	}
	gas := g.gasLimit
	if gas == 0 {
		gas, err = g.backend.EstimateGas(ctx, goethereum.CallMsg{From: g.from, To: &g.contract, Data: data})
		if err != nil {
			return nil, errors.Wrapf(err, "failed estimating gas of withdrawal [%s]", r.ID)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &g.contract,
		Value:    big.NewInt(0),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), g.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed signing withdrawal")
	}
	return signed, nil
}

func (g *Gateway) packWithdrawal(r *driver.WithdrawRecord) ([]byte, error) {
	sigs, err := r.Signatures()
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidWithdrawal, "invalid proof of withdrawal [%s]: %s", r.ID, err)
	}
	if len(sigs) == 0 {
		return nil, errors.Wrapf(ErrInvalidWithdrawal, "withdrawal [%s] has no proof", r.ID)
	}
	if !common.IsHexAddress(r.EthereumAssetAddress) {
		return nil, errors.Wrapf(ErrInvalidWithdrawal, "invalid asset address [%s]", r.EthereumAssetAddress)
	}
	if !common.IsHexAddress(r.Receiver) {
		return nil, errors.Wrapf(ErrInvalidWithdrawal, "invalid receiver [%s]", r.Receiver)
	}
	if r.Amount == nil {
		return nil, errors.Wrapf(ErrInvalidWithdrawal, "withdrawal [%s] has no amount", r.ID)
	}

	v := make([]uint8, len(sigs))
	rs := make([][32]byte, len(sigs))
	ss := make([][32]byte, len(sigs))
	for i, sig := range sigs {
		v[i] = sig.V
		rs[i] = common.HexToHash(sig.R)
		ss[i] = common.HexToHash(sig.S)
	}
	data, err := g.abi.Pack(receiveMethod,
		common.HexToAddress(r.EthereumAssetAddress),
		r.Amount,
		common.HexToAddress(r.Receiver),
		g.from,
		common.HexToHash(r.RequestHash),
		v, rs, ss,
	)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidWithdrawal, "failed packing withdrawal [%s]: %s", r.ID, err)
	}
	return data, nil
}

// Send broadcasts the transaction. A transaction already known to the node is not an error.
func (g *Gateway) Send(ctx context.Context, tx *types.Transaction) error {
	if err := g.backend.SendTransaction(ctx, tx); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already known") {
			logger.Debugf("transaction [%s] already known", tx.Hash().Hex())
			return nil
		}
		return errors.Wrapf(err, "failed sending [%s]", tx.Hash().Hex())
	}
	logger.Infof("sent transaction [%s]", tx.Hash().Hex())
	return nil
}

// SendRaw broadcasts a binary encoded signed transaction
func (g *Gateway) SendRaw(ctx context.Context, raw []byte) error {
	tx := &types.Transaction{}
	if err := tx.UnmarshalBinary(raw); err != nil {
		return errors.Wrap(err, "invalid raw transaction")
	}
	return g.Send(ctx, tx)
}

// SubmitWithdrawal signs and sends the withdrawal, returning the transaction hash
func (g *Gateway) SubmitWithdrawal(ctx context.Context, r *driver.WithdrawRecord) (string, error) {
	tx, err := g.PrepareWithdrawal(ctx, r)
	if err != nil {
		return "", err
	}
	if err := g.Send(ctx, tx); err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// Receipt returns the receipt of the transaction with its confirmations.
// It returns ErrReceiptNotFound while the transaction is pending or unknown.
func (g *Gateway) Receipt(ctx context.Context, hash string) (*Receipt, error) {
	receipt, err := g.backend.TransactionReceipt(ctx, common.HexToHash(hash))
	if err != nil {
		if errors.Is(err, goethereum.NotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, errors.Wrapf(err, "failed getting receipt [%s]", hash)
	}
	head, err := g.backend.BlockNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed getting block number")
	}
	r := &Receipt{
		TxHash:  hash,
		Success: receipt.Status == types.ReceiptStatusSuccessful,
	}
	if receipt.BlockNumber != nil {
		r.BlockNumber = receipt.BlockNumber.Uint64()
		if head >= r.BlockNumber {
			r.Confirmations = head - r.BlockNumber + 1
		}
	}
	return r, nil
}
