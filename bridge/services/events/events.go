/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package events

import (
	"sync"

	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
)

var logger = logging.MustGetLogger("events")

// Topic identifies a class of events
type Topic string

const (
	// StorageChanged is published when a subscribed chain storage item is persisted
	StorageChanged Topic = "storage.changed"
	// BalanceChanged is published when the account info storage item changes
	BalanceChanged Topic = "balance.changed"
	// NewBlock is published with the hash of every observed block
	NewBlock Topic = "block.new"
	// TransactionsUpdated is published after a block's transactions are persisted
	TransactionsUpdated Topic = "transactions.updated"
	// WithdrawUpdated and DepositUpdated are published on every bridge status transition
	WithdrawUpdated Topic = "withdraw.updated"
	DepositUpdated  Topic = "deposit.updated"
)

type Event struct {
	Topic   Topic
	Payload any
}

// Publisher publishes events to the listeners of their topic
type Publisher interface {
	Publish(event Event)
}

// Subscriber registers channels to receive the events of a topic
type Subscriber interface {
	Subscribe(topic Topic, ch chan<- Event)
	Unsubscribe(topic Topic, ch chan<- Event)
}

// Service is an in-process event center.
// Delivery never blocks the publisher: events for a listener whose buffer is full are dropped.
type Service struct {
	listeners map[Topic][]chan<- Event
	mutex     sync.RWMutex
}

func NewService() *Service {
	return &Service{
		listeners: map[Topic][]chan<- Event{},
	}
}

func (c *Service) Subscribe(topic Topic, ch chan<- Event) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.listeners[topic] = append(c.listeners[topic], ch)
}

func (c *Service) Unsubscribe(topic Topic, ch chan<- Event) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	ls, ok := c.listeners[topic]
	if !ok {
		return
	}
	for i, l := range ls {
		if l == ch {
			ls = append(ls[:i:i], ls[i+1:]...)
			if len(ls) == 0 {
				delete(c.listeners, topic)
			} else {
				c.listeners[topic] = ls
			}
			return
		}
	}
}

func (c *Service) Publish(event Event) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, listener := range c.listeners[event.Topic] {
		select {
		case listener <- event:
		default:
			logger.Warnf("listener buffer full, dropping event [%s]", event.Topic)
		}
	}
}
