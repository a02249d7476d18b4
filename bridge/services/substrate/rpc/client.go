/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
)

var logger = logging.MustGetLogger("substrate.rpc")

var (
	// ErrClosed is returned by the calls pending or issued after the connection is closed
	ErrClosed = errors.New("connection closed")
)

const (
	jsonRPCVersion     = "2.0"
	notificationBuffer = 128
	writeTimeout       = 10 * time.Second
)

// Error is a JSON-RPC error returned by the node
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Data) != 0 {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type message struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	Method string          `json:"method"`
	Params *struct {
		Subscription json.RawMessage `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

type response struct {
	result json.RawMessage
	err    error
}

type pendingCall struct {
	ch  chan response
	sub *Subscription
}

// Client is a JSON-RPC 2.0 client over a single websocket connection.
// Responses are matched to calls by id, notifications to subscriptions by subscription id.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]*pendingCall
	subs    map[string]*Subscription
	err     error

	done chan struct{}
}

// Dial connects to the websocket endpoint of a substrate node
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed dialing [%s]", endpoint)
	}
	logger.Infof("connected to [%s]", endpoint)
	c := &Client{
		conn:    conn,
		pending: map[uint64]*pendingCall{},
		subs:    map[string]*Subscription{},
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Call invokes method and unmarshals its result into result, unless result is nil
func (c *Client) Call(ctx context.Context, result any, method string, params ...any) error {
	raw, err := c.call(ctx, method, params, nil)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return errors.Wrapf(err, "failed decoding result of [%s]", method)
	}
	return nil
}

// Subscribe invokes method, which must return a subscription id, and routes the
// notifications for that id to the returned Subscription
func (c *Client) Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...any) (*Subscription, error) {
	sub := &Subscription{
		client:        c,
		method:        method,
		unsubscribe:   unsubscribeMethod,
		notifications: make(chan json.RawMessage, notificationBuffer),
		errCh:         make(chan error, 1),
		quit:          make(chan struct{}),
	}
	if _, err := c.call(ctx, method, params, sub); err != nil {
		return nil, err
	}
	logger.Debugf("subscribed [%s] with id [%s]", method, sub.id)
	return sub, nil
}

func (c *Client) call(ctx context.Context, method string, params []any, sub *Subscription) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	id := c.nextID.Add(1)
	ch := make(chan response, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, c.err
	}
	c.pending[id] = &pendingCall{ch: ch, sub: sub}
	c.mu.Unlock()

	if err := c.write(request{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: params}); err != nil {
		c.forget(id)
		return nil, errors.Wrapf(err, "failed sending [%s]", method)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, errors.WithMessagef(r.err, "call [%s] failed", method)
		}
		return r.result, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, errors.Wrapf(ctx.Err(), "call [%s] aborted", method)
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(errors.Wrap(ErrClosed, err.Error()))
			return
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("dropping malformed message: %s", err)
			continue
		}
		switch {
		case msg.ID != nil:
			c.dispatchResponse(*msg.ID, &msg)
		case msg.Params != nil:
			c.dispatchNotification(&msg)
		default:
			logger.Debugf("ignoring message [%s]", string(data))
		}
	}
}

func (c *Client) dispatchResponse(id uint64, msg *message) {
	c.mu.Lock()
	p, ok := c.pending[id]
	delete(c.pending, id)
	if ok && p.sub != nil && msg.Error == nil {
		// registered before the response is released so that no notification is missed
		p.sub.id = subscriptionID(msg.Result)
		c.subs[p.sub.id] = p.sub
	}
	c.mu.Unlock()

	if !ok {
		logger.Debugf("response for unknown request [%d]", id)
		return
	}
	if msg.Error != nil {
		p.ch <- response{err: msg.Error}
		return
	}
	p.ch <- response{result: msg.Result}
}

func (c *Client) dispatchNotification(msg *message) {
	id := subscriptionID(msg.Params.Subscription)
	c.mu.Lock()
	sub, ok := c.subs[id]
	c.mu.Unlock()
	if !ok {
		logger.Debugf("notification [%s] for unknown subscription [%s]", msg.Method, id)
		return
	}
	select {
	case sub.notifications <- msg.Params.Result:
	case <-sub.quit:
	case <-c.done:
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
	for id, p := range c.pending {
		p.ch <- response{err: c.err}
		delete(c.pending, id)
	}
	for id, s := range c.subs {
		s.fail(c.err)
		delete(c.subs, id)
	}
}

// Close closes the connection, failing the pending calls and the subscriptions
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

// Done is closed when the connection is lost or closed
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) removeSubscription(id string) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

func subscriptionID(raw json.RawMessage) string {
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}
