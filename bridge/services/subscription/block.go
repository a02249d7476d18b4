/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package subscription

import (
	"context"

	"github.com/sora-xor/sora-bridge-sdk/bridge/services/events"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/substrate/keys"
)

// BlockProcessor processes the content of a block
type BlockProcessor interface {
	Process(ctx context.Context, blockHash string) error
}

// BlockNumberSubscription follows System.Number and hands every new block to the processor
type BlockNumberSubscription struct {
	*EmptyHandlingStorageSubscription
	processor BlockProcessor
	publisher events.Publisher
}

// NewBlockNumberSubscription returns the subscription. publisher may be nil.
func NewBlockNumberSubscription(store driver.ChainStorageStore, processor BlockProcessor, publisher events.Publisher, opts ...Option) *BlockNumberSubscription {
	key := keys.Hex(keys.SystemNumber)
	s := &BlockNumberSubscription{processor: processor, publisher: publisher}
	s.EmptyHandlingStorageSubscription = NewEmptyHandlingStorageSubscription(key, key, store, append(opts, WithHandler(s.onUpdate))...)
	return s
}

func (s *BlockNumberSubscription) onUpdate(ctx context.Context, op driver.Operation, item *driver.ChainStorageItem) {
	if op != driver.Insert && op != driver.Update {
		return
	}
	if s.publisher != nil {
		s.publisher.Publish(events.Event{Topic: events.NewBlock, Payload: item.BlockHash})
	}
	if err := s.processor.Process(ctx, item.BlockHash); err != nil {
		logger.Errorf("failed processing transactions of block [%s]: %s", item.BlockHash, err)
	}
}
