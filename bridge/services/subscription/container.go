/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package subscription

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/substrate/keys"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/utils"
)

var logger = logging.MustGetLogger("subscription")

const (
	subscribeStorage   = "state_subscribeStorage"
	unsubscribeStorage = "state_unsubscribeStorage"
)

// ChildSubscription handles the updates of one remote storage key
type ChildSubscription interface {
	// StorageKey is the hex encoded remote key
	StorageKey() string
	// ProcessUpdate receives the new value of the key, nil when the key was removed
	ProcessUpdate(ctx context.Context, data []byte, blockHash string) error
}

// StorageChangeSet is the payload of a state_storage notification
type StorageChangeSet struct {
	Block   string              `json:"block"`
	Changes [][]json.RawMessage `json:"changes"`
}

// Change is one decoded entry of a StorageChangeSet
type Change struct {
	Key  string
	Data []byte
}

// Decode returns the changes of the set. A null value decodes to nil data.
func (s *StorageChangeSet) Decode() ([]Change, error) {
	changes := make([]Change, 0, len(s.Changes))
	for i, c := range s.Changes {
		if len(c) != 2 {
			return nil, errors.Errorf("change [%d] has %d elements", i, len(c))
		}
		var key string
		if err := json.Unmarshal(c[0], &key); err != nil {
			return nil, errors.Wrapf(err, "invalid key in change [%d]", i)
		}
		var value *string
		if err := json.Unmarshal(c[1], &value); err != nil {
			return nil, errors.Wrapf(err, "invalid value in change [%d]", i)
		}
		change := Change{Key: key}
		if value != nil {
			data, err := keys.FromHex(*value)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid value of [%s]", key)
			}
			change.Data = data
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// StorageSubscriptionContainer subscribes the storage keys of its children in one
// state_subscribeStorage call and dispatches every change to the children bound to the key
type StorageSubscriptionContainer struct {
	conn     Connection
	children []ChildSubscription
	retry    utils.RetryRunner

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStorageSubscriptionContainer returns a container resubscribing every reconnectDelay, with exponential backoff
func NewStorageSubscriptionContainer(conn Connection, reconnectDelay time.Duration, children ...ChildSubscription) *StorageSubscriptionContainer {
	return &StorageSubscriptionContainer{
		conn:     conn,
		children: children,
		retry:    utils.NewRetryRunner(utils.Infinitely, reconnectDelay, true).WithMaxDelay(10 * reconnectDelay),
	}
}

// StorageKeys returns the distinct keys of the children
func (c *StorageSubscriptionContainer) StorageKeys() []string {
	var ks []string
	for _, child := range c.children {
		found := false
		for _, k := range ks {
			if keys.SameKey(k, child.StorageKey()) {
				found = true
				break
			}
		}
		if !found {
			ks = append(ks, child.StorageKey())
		}
	}
	return ks
}

// Start subscribes and dispatches the notifications in the background until Stop is called or ctx is done.
// The first subscription attempt is synchronous.
func (c *StorageSubscriptionContainer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return errors.New("container already started")
	}
	stream, err := c.subscribe(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.run(ctx, stream)
	return nil
}

// Stop unsubscribes and waits for the dispatch to return
func (c *StorageSubscriptionContainer) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
}

func (c *StorageSubscriptionContainer) subscribe(ctx context.Context) (Stream, error) {
	ks := c.StorageKeys()
	stream, err := c.conn.Subscribe(ctx, subscribeStorage, unsubscribeStorage, ks)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed subscribing [%d] storage keys", len(ks))
	}
	logger.Debugf("subscribed storage keys %v", ks)
	return stream, nil
}

func (c *StorageSubscriptionContainer) resubscribe(ctx context.Context) (Stream, error) {
	var stream Stream
	err := c.retry.Run(ctx, func() error {
		s, err := c.subscribe(ctx)
		if err != nil {
			logger.Warnf("resubscription failed: %s", err)
			return err
		}
		stream = s
		return nil
	})
	return stream, err
}

func (c *StorageSubscriptionContainer) run(ctx context.Context, stream Stream) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			stream.Unsubscribe()
			return
		case raw, ok := <-stream.Notifications():
			if ok {
				c.dispatch(ctx, raw)
				continue
			}
			logger.Warnf("storage subscription closed")
		case err := <-stream.Err():
			logger.Warnf("storage subscription failed: %s", err)
		}

		stream.Unsubscribe()
		next, err := c.resubscribe(ctx)
		if err != nil {
			logger.Debugf("stopped resubscribing: %s", err)
			return
		}
		stream = next
	}
}

func (c *StorageSubscriptionContainer) dispatch(ctx context.Context, raw json.RawMessage) {
	var set StorageChangeSet
	if err := json.Unmarshal(raw, &set); err != nil {
		logger.Errorf("malformed storage notification: %s", err)
		return
	}
	changes, err := set.Decode()
	if err != nil {
		logger.Errorf("malformed storage notification at [%s]: %s", set.Block, err)
		return
	}
	for _, change := range changes {
		for _, child := range c.children {
			if !keys.SameKey(child.StorageKey(), change.Key) {
				continue
			}
			if err := child.ProcessUpdate(ctx, change.Data, set.Block); err != nil {
				logger.Errorf("failed processing update of [%s] at [%s]: %s", change.Key, set.Block, err)
			}
		}
	}
}
