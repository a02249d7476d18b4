/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package subscription

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/events"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/metrics"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
)

var storageUpdatesOpts = metrics.CounterOpts{
	Subsystem:  "subscription",
	Name:       "storage_updates",
	Help:       "The number of persisted storage changes",
	LabelNames: []string{"key", "op"},
}

// Handler is invoked after an update was processed. op is driver.Unknown when nothing changed.
type Handler func(ctx context.Context, op driver.Operation, item *driver.ChainStorageItem)

type Option func(*BaseStorageChildSubscription)

// WithHandler sets the hook invoked after every update
func WithHandler(h Handler) Option {
	return func(s *BaseStorageChildSubscription) {
		s.handler = h
	}
}

// WithMetrics counts the persisted changes
func WithMetrics(p metrics.Provider) Option {
	return func(s *BaseStorageChildSubscription) {
		s.updates = p.NewCounter(storageUpdatesOpts)
	}
}

// BaseStorageChildSubscription keeps the local copy of a remote storage item up to date
type BaseStorageChildSubscription struct {
	storageKey string
	localKey   string
	store      driver.ChainStorageStore
	handler    Handler
	updates    metrics.Counter
	// keepEmpty persists removed remote items as empty items
	keepEmpty bool
}

func NewBaseStorageChildSubscription(storageKey, localKey string, store driver.ChainStorageStore, opts ...Option) *BaseStorageChildSubscription {
	s := &BaseStorageChildSubscription{
		storageKey: storageKey,
		localKey:   localKey,
		store:      store,
		updates:    metrics.Disabled{}.NewCounter(storageUpdatesOpts),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BaseStorageChildSubscription) StorageKey() string { return s.storageKey }

func (s *BaseStorageChildSubscription) LocalKey() string { return s.localKey }

func (s *BaseStorageChildSubscription) ProcessUpdate(ctx context.Context, data []byte, blockHash string) error {
	op, item, err := s.persist(ctx, data, blockHash)
	if err != nil {
		return errors.WithMessagef(err, "failed persisting [%s]", s.localKey)
	}
	if op != driver.Unknown {
		logger.Debugf("storage item [%s] %s at [%s]", s.localKey, op, blockHash)
		s.updates.With("key", s.localKey, "op", op.String()).Add(1)
	}
	if s.handler != nil {
		s.handler(ctx, op, item)
	}
	return nil
}

func (s *BaseStorageChildSubscription) persist(ctx context.Context, data []byte, blockHash string) (driver.Operation, *driver.ChainStorageItem, error) {
	current, err := s.store.Get(ctx, s.localKey)
	if err != nil {
		return driver.Unknown, nil, err
	}
	if data == nil && s.keepEmpty {
		data = []byte{}
	}

	switch {
	case data == nil && current == nil:
		return driver.Unknown, nil, nil
	case data == nil:
		if err := s.store.Delete(ctx, s.localKey); err != nil {
			return driver.Unknown, nil, err
		}
		return driver.Delete, current, nil
	case current != nil && bytes.Equal(current.Data, data):
		return driver.Unknown, current, nil
	}

	item := &driver.ChainStorageItem{Key: s.localKey, Data: data, BlockHash: blockHash}
	if err := s.store.Put(ctx, item); err != nil {
		return driver.Unknown, nil, err
	}
	if current == nil {
		return driver.Insert, item, nil
	}
	return driver.Update, item, nil
}

// EmptyHandlingStorageSubscription stores a removed or missing remote item as an empty item,
// so that a known empty value differs from one never fetched
type EmptyHandlingStorageSubscription struct {
	*BaseStorageChildSubscription
}

func NewEmptyHandlingStorageSubscription(storageKey, localKey string, store driver.ChainStorageStore, opts ...Option) *EmptyHandlingStorageSubscription {
	base := NewBaseStorageChildSubscription(storageKey, localKey, store, opts...)
	base.keepEmpty = true
	return &EmptyHandlingStorageSubscription{BaseStorageChildSubscription: base}
}

// EventFactory builds the event published for a change. Returning nil publishes nothing.
type EventFactory func(op driver.Operation, item *driver.ChainStorageItem) *events.Event

// EventEmittingStorageSubscription publishes an event for every persisted change
type EventEmittingStorageSubscription struct {
	*BaseStorageChildSubscription
	publisher events.Publisher
	factory   EventFactory
}

func NewEventEmittingStorageSubscription(storageKey, localKey string, store driver.ChainStorageStore, publisher events.Publisher, factory EventFactory, opts ...Option) *EventEmittingStorageSubscription {
	s := &EventEmittingStorageSubscription{publisher: publisher, factory: factory}
	s.BaseStorageChildSubscription = NewBaseStorageChildSubscription(storageKey, localKey, store, opts...)
	next := s.handler
	s.handler = func(ctx context.Context, op driver.Operation, item *driver.ChainStorageItem) {
		if op != driver.Unknown {
			s.emit(op, item)
		}
		if next != nil {
			next(ctx, op, item)
		}
	}
	return s
}

func (s *EventEmittingStorageSubscription) emit(op driver.Operation, item *driver.ChainStorageItem) {
	if e := s.factory(op, item); e != nil {
		s.publisher.Publish(*e)
	}
}

// StorageChangedEvent is an EventFactory publishing the item under the given topic
func StorageChangedEvent(topic events.Topic) EventFactory {
	return func(op driver.Operation, item *driver.ChainStorageItem) *events.Event {
		return &events.Event{Topic: topic, Payload: &StorageChanged{Op: op, Item: item}}
	}
}

// StorageChanged is the payload of the events published by StorageChangedEvent
type StorageChanged struct {
	Op   driver.Operation
	Item *driver.ChainStorageItem
}
