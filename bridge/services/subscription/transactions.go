/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package subscription

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/events"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/extrinsic"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/substrate/codec"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/substrate/keys"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// MetadataSource returns the runtime metadata in force at a block
type MetadataSource interface {
	Metadata(ctx context.Context, blockHash string) (*codec.Metadata, error)
}

// SignedBlock is the result of chain_getBlock
type SignedBlock struct {
	Block struct {
		Header struct {
			ParentHash string `json:"parentHash"`
			Number     string `json:"number"`
		} `json:"header"`
		Extrinsics []string `json:"extrinsics"`
	} `json:"block"`
}

// TransactionsUpdated is the payload of the events.TransactionsUpdated events
type TransactionsUpdated struct {
	BlockHash   string
	BlockNumber uint64
	Hashes      []string
	Failed      []string
}

// TransactionSubscription persists, for every processed block, the extrinsics involving the local account.
// Local pending records are completed when their hash is found in a block.
type TransactionSubscription struct {
	caller         codec.Caller
	metadata       MetadataSource
	decoder        codec.Decoder
	processor      *extrinsic.Processor
	store          driver.TransactionStore
	accountID      string
	publisher      events.Publisher
	retry          utils.RetryRunner
	pendingTimeout time.Duration
	tracer         trace.Tracer
	now            func() time.Time
}

type TransactionSubscriptionOpts struct {
	// AccountID is the hex account id of the local account
	AccountID string
	// PendingTimeout is the age after which a pending record is failed. Zero disables the check.
	PendingTimeout time.Duration
	Retry          utils.RetryRunner
	Publisher      events.Publisher
	Tracer         trace.Tracer
}

func NewTransactionSubscription(caller codec.Caller, metadata MetadataSource, decoder codec.Decoder, processor *extrinsic.Processor, store driver.TransactionStore, opts TransactionSubscriptionOpts) *TransactionSubscription {
	s := &TransactionSubscription{
		caller:         caller,
		metadata:       metadata,
		decoder:        decoder,
		processor:      processor,
		store:          store,
		accountID:      codec.NormalizeAccountID(opts.AccountID),
		publisher:      opts.Publisher,
		retry:          opts.Retry,
		pendingTimeout: opts.PendingTimeout,
		tracer:         opts.Tracer,
		now:            time.Now,
	}
	if s.retry == nil {
		s.retry = utils.NewRetryRunner(3, time.Second, true)
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("subscription")
	}
	return s
}

// Process persists the transactions of the block
func (s *TransactionSubscription) Process(ctx context.Context, blockHash string) error {
	ctx, span := s.tracer.Start(ctx, "process_block", trace.WithAttributes(attribute.String("block", blockHash)))
	defer span.End()

	var result *TransactionsUpdated
	err := s.retry.Run(ctx, func() error {
		r, err := s.process(ctx, blockHash)
		if err != nil {
			logger.Warnf("failed processing block [%s]: %s", blockHash, err)
			span.RecordError(err)
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return errors.WithMessagef(err, "failed processing block [%s]", blockHash)
	}

	if s.pendingTimeout > 0 {
		failed, err := s.store.FailStale(ctx, s.now().Add(-s.pendingTimeout))
		if err != nil {
			logger.Errorf("failed expiring pending transactions: %s", err)
		} else {
			result.Failed = failed
		}
	}
	span.SetAttributes(attribute.Int("transactions", len(result.Hashes)))
	if s.publisher != nil && (len(result.Hashes) != 0 || len(result.Failed) != 0) {
		s.publisher.Publish(events.Event{Topic: events.TransactionsUpdated, Payload: result})
	}
	return nil
}

func (s *TransactionSubscription) process(ctx context.Context, blockHash string) (*TransactionsUpdated, error) {
	var block SignedBlock
	if err := s.caller.Call(ctx, &block, "chain_getBlock", blockHash); err != nil {
		return nil, errors.WithMessage(err, "failed getting block")
	}
	number, err := hexutil.DecodeUint64(block.Block.Header.Number)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid block number [%s]", block.Block.Header.Number)
	}
	var rawEvents *string
	if err := s.caller.Call(ctx, &rawEvents, "state_getStorage", keys.Hex(keys.SystemEvents), blockHash); err != nil {
		return nil, errors.WithMessage(err, "failed getting events")
	}
	md, err := s.metadata.Metadata(ctx, blockHash)
	if err != nil {
		return nil, err
	}

	var blockEvents []*codec.Event
	if rawEvents != nil {
		blockEvents, err = s.decoder.DecodeEvents(md, *rawEvents)
		if err != nil {
			return nil, errors.WithMessage(err, "failed decoding events")
		}
	}

	extrinsics := make([]*codec.Extrinsic, len(block.Block.Extrinsics))
	for i, raw := range block.Block.Extrinsics {
		extrinsics[i], err = s.decoder.DecodeExtrinsic(md, raw)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed decoding extrinsic [%d]", i)
		}
	}
	timestamp := blockTimestamp(extrinsics)

	var records []*driver.TransactionRecord
	for i, ext := range extrinsics {
		r := s.processor.Process(uint32(i), ext, blockEvents, s.accountID)
		if r == nil {
			continue
		}
		record := r.Record()
		record.BlockNumber = &number
		record.Timestamp = timestamp
		records = append(records, record)
	}

	result := &TransactionsUpdated{BlockHash: blockHash, BlockNumber: number}
	if len(records) == 0 {
		return result, nil
	}
	if err := s.store.Upsert(ctx, records...); err != nil {
		return nil, errors.WithMessagef(err, "failed storing [%d] transactions", len(records))
	}
	for _, r := range records {
		result.Hashes = append(result.Hashes, r.TxHash)
	}
	logger.Infof("stored [%d] transactions of block [%d:%s]", len(records), number, blockHash)
	return result, nil
}

// blockTimestamp returns the time set by the Timestamp.set inherent, zero if missing
func blockTimestamp(extrinsics []*codec.Extrinsic) time.Time {
	for _, ext := range extrinsics {
		if !ext.Call.Is("Timestamp", "set") {
			continue
		}
		v, ok := ext.Call.Param("now")
		if !ok {
			return time.Time{}
		}
		if ms, ok := codec.AsBigInt(v); ok {
			return time.UnixMilli(ms.Int64()).UTC()
		}
	}
	return time.Time{}
}
