/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const unsubscribeTimeout = 5 * time.Second

// Subscription receives the notifications of a subscription method
type Subscription struct {
	client        *Client
	id            string
	method        string
	unsubscribe   string
	notifications chan json.RawMessage
	errCh         chan error
	quit          chan struct{}
	once          sync.Once
}

func (s *Subscription) ID() string { return s.id }

// Notifications delivers the result of every notification, in arrival order
func (s *Subscription) Notifications() <-chan json.RawMessage {
	return s.notifications
}

// Err receives at most one error, when the connection is lost
func (s *Subscription) Err() <-chan error {
	return s.errCh
}

// Unsubscribe stops the delivery and notifies the node, ignoring its answer
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.quit)
		s.client.removeSubscription(s.id)
		if len(s.unsubscribe) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
		defer cancel()
		if err := s.client.Call(ctx, nil, s.unsubscribe, s.id); err != nil {
			logger.Debugf("failed unsubscribing [%s:%s]: %s", s.method, s.id, err)
		}
	})
}

func (s *Subscription) fail(err error) {
	select {
	case s.errCh <- err:
	default:
	}
}
