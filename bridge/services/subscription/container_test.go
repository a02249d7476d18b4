/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package subscription

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type update struct {
	data  []byte
	block string
}

type recordingChild struct {
	key     string
	mu      sync.Mutex
	updates []update
}

func (c *recordingChild) StorageKey() string { return c.key }

func (c *recordingChild) ProcessUpdate(_ context.Context, data []byte, blockHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, update{data: data, block: blockHash})
	return nil
}

func (c *recordingChild) Updates() []update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]update{}, c.updates...)
}

func notification(t *testing.T, block string, changes ...[2]any) json.RawMessage {
	set := map[string]any{"block": block, "changes": changes}
	raw, err := json.Marshal(set)
	require.NoError(t, err)
	return raw
}

func TestStorageChangeSetDecode(t *testing.T) {
	set := StorageChangeSet{}
	require.NoError(t, json.Unmarshal([]byte(`{"block":"0xb1","changes":[["0xAB","0x0102"],["0xcd",null]]}`), &set))
	changes, err := set.Decode()
	require.NoError(t, err)
	assert.Equal(t, []Change{{Key: "0xAB", Data: []byte{1, 2}}, {Key: "0xcd"}}, changes)

	set = StorageChangeSet{}
	require.NoError(t, json.Unmarshal([]byte(`{"block":"0xb1","changes":[["0xAB"]]}`), &set))
	_, err = set.Decode()
	assert.Error(t, err)

	set = StorageChangeSet{}
	require.NoError(t, json.Unmarshal([]byte(`{"block":"0xb1","changes":[["0xAB","0xzz"]]}`), &set))
	_, err = set.Decode()
	assert.Error(t, err)
}

func TestContainerDispatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	stream := newFakeStream()
	conn := newFakeConnection(stream)
	a := &recordingChild{key: "0xaa01"}
	b := &recordingChild{key: "0xbb02"}
	a2 := &recordingChild{key: "0xAA01"}
	c := NewStorageSubscriptionContainer(conn, 10*time.Millisecond, a, b, a2)
	assert.Equal(t, []string{"0xaa01", "0xbb02"}, c.StorageKeys())

	require.NoError(t, c.Start(context.Background()))
	assert.Error(t, c.Start(context.Background()))
	require.Len(t, conn.params, 1)
	assert.Equal(t, []any{[]string{"0xaa01", "0xbb02"}}, conn.params[0])

	stream.notifications <- notification(t, "0xb1", [2]any{"0xAA01", "0x01"}, [2]any{"0xffff", "0x02"})
	stream.notifications <- notification(t, "0xb2", [2]any{"0xbb02", nil}, [2]any{"0xaa01", "0x03"})
	stream.notifications <- json.RawMessage(`{"block":`)

	assert.Eventually(t, func() bool { return len(a.Updates()) == 2 && len(b.Updates()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []update{{data: []byte{1}, block: "0xb1"}, {data: []byte{3}, block: "0xb2"}}, a.Updates())
	assert.Equal(t, a.Updates(), a2.Updates())
	assert.Equal(t, []update{{block: "0xb2"}}, b.Updates())

	c.Stop()
	c.Stop()
	select {
	case <-stream.unsubscribed:
	default:
		t.Fatal("stream not unsubscribed")
	}
}

func TestContainerResubscribes(t *testing.T) {
	defer goleak.VerifyNone(t)

	first, second := newFakeStream(), newFakeStream()
	conn := newFakeConnection(first, second)
	child := &recordingChild{key: "0x01"}
	c := NewStorageSubscriptionContainer(conn, time.Millisecond, child)
	require.NoError(t, c.Start(context.Background()))
	<-conn.subscribe

	conn.mu.Lock()
	conn.failNext = 2
	conn.mu.Unlock()
	first.errs <- errors.New("connection lost")

	select {
	case s := <-conn.subscribe:
		assert.Equal(t, second, s)
	case <-time.After(time.Second):
		t.Fatal("not resubscribed")
	}
	<-first.unsubscribed

	second.notifications <- notification(t, "0xb9", [2]any{"0x01", "0x09"})
	assert.Eventually(t, func() bool { return len(child.Updates()) == 1 }, time.Second, 5*time.Millisecond)

	c.Stop()
	<-second.unsubscribed
}

func TestContainerStartFails(t *testing.T) {
	conn := newFakeConnection()
	c := NewStorageSubscriptionContainer(conn, time.Millisecond, &recordingChild{key: "0x01"})
	assert.Error(t, c.Start(context.Background()))
	c.Stop()
}
