/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package subscription

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/notifier"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/sql/sqlite"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/substrate/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) *driver.Stores {
	t.Helper()
	stores, err := sqlite.NewDriver().Open(driver.Opts{
		DataSource:  "file:" + filepath.Join(t.TempDir(), "bridge.db"),
		TablePrefix: "test",
	}, notifier.New())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, stores.Close()) })
	return stores
}

type fakeStream struct {
	notifications chan json.RawMessage
	errs          chan error
	once          sync.Once
	unsubscribed  chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		notifications: make(chan json.RawMessage, 10),
		errs:          make(chan error, 1),
		unsubscribed:  make(chan struct{}),
	}
}

func (s *fakeStream) Notifications() <-chan json.RawMessage { return s.notifications }
func (s *fakeStream) Err() <-chan error                     { return s.errs }
func (s *fakeStream) Unsubscribe()                          { s.once.Do(func() { close(s.unsubscribed) }) }

// fakeConnection answers calls from a table and hands out the queued streams
type fakeConnection struct {
	mu        sync.Mutex
	results   map[string]any
	streams   []*fakeStream
	params    [][]any
	failNext  int
	subscribe chan *fakeStream
}

func newFakeConnection(streams ...*fakeStream) *fakeConnection {
	return &fakeConnection{
		results:   map[string]any{},
		streams:   streams,
		subscribe: make(chan *fakeStream, len(streams)),
	}
}

func (c *fakeConnection) Call(_ context.Context, result any, method string, params ...any) error {
	c.mu.Lock()
	v, ok := c.results[method]
	c.mu.Unlock()
	if !ok {
		return errors.Errorf("unexpected call [%s]", method)
	}
	if err, ok := v.(error); ok {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

func (c *fakeConnection) Subscribe(_ context.Context, method, _ string, params ...any) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if method != subscribeStorage {
		return nil, errors.Errorf("unexpected subscription [%s]", method)
	}
	if c.failNext > 0 {
		c.failNext--
		return nil, errors.New("node unavailable")
	}
	if len(c.streams) == 0 {
		return nil, errors.New("no more streams")
	}
	s := c.streams[0]
	c.streams = c.streams[1:]
	c.params = append(c.params, params)
	c.subscribe <- s
	return s, nil
}

// fakeDecoder decodes extrinsics and events registered under their raw form
type fakeDecoder struct {
	extrinsics map[string]*codec.Extrinsic
	events     map[string][]*codec.Event
}

func (d *fakeDecoder) DecodeMetadata(specVersion uint32, _ string) (*codec.Metadata, error) {
	return codec.NewMetadata(specVersion, nil), nil
}

func (d *fakeDecoder) DecodeExtrinsic(_ *codec.Metadata, raw string) (*codec.Extrinsic, error) {
	ext, ok := d.extrinsics[raw]
	if !ok {
		return nil, errors.Errorf("cannot decode [%s]", raw)
	}
	return ext, nil
}

func (d *fakeDecoder) DecodeEvents(_ *codec.Metadata, raw string) ([]*codec.Event, error) {
	return d.events[raw], nil
}

type fakeMetadata struct{}

func (fakeMetadata) Metadata(context.Context, string) (*codec.Metadata, error) {
	return codec.NewMetadata(1, nil), nil
}

type recordingProcessor struct {
	mu     sync.Mutex
	blocks []string
}

func (p *recordingProcessor) Process(_ context.Context, blockHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocks = append(p.blocks, blockHash)
	return nil
}

func (p *recordingProcessor) Blocks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.blocks...)
}
