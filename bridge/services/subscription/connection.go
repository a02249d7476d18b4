/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package subscription

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/substrate/rpc"
)

// Stream is a live subscription. *rpc.Subscription satisfies it.
type Stream interface {
	Notifications() <-chan json.RawMessage
	Err() <-chan error
	Unsubscribe()
}

// Connection is the JSON-RPC connection to the SORA node
type Connection interface {
	Call(ctx context.Context, result any, method string, params ...any) error
	Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...any) (Stream, error)
}

// Redialer is a Connection that dials the endpoint again once the current client is lost
type Redialer struct {
	endpoint string
	mu       sync.Mutex
	client   *rpc.Client
	closed   bool
}

func NewRedialer(endpoint string) *Redialer {
	return &Redialer{endpoint: endpoint}
}

func (r *Redialer) Call(ctx context.Context, result any, method string, params ...any) error {
	c, err := r.get(ctx)
	if err != nil {
		return err
	}
	return c.Call(ctx, result, method, params...)
}

func (r *Redialer) Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...any) (Stream, error) {
	c, err := r.get(ctx)
	if err != nil {
		return nil, err
	}
	s, err := c.Subscribe(ctx, method, unsubscribeMethod, params...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Redialer) get(ctx context.Context) (*rpc.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, rpc.ErrClosed
	}
	if r.client != nil {
		select {
		case <-r.client.Done():
			logger.Infof("connection to [%s] lost, dialing again", r.endpoint)
			r.client = nil
		default:
			return r.client, nil
		}
	}
	c, err := rpc.Dial(ctx, r.endpoint)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed dialing [%s]", r.endpoint)
	}
	r.client = c
	return c, nil
}

func (r *Redialer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}
