/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sora-xor/sora-bridge-sdk/bridge/services/config"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager(t *testing.T) {
	m := NewDefaultManager()
	assert.Equal(t, []string{"postgres", "sqlite"}, m.Drivers())

	_, err := m.Open(config.PersistenceConfig{Type: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistence type [mongo] not found")

	stores, err := m.Open(config.PersistenceConfig{
		Type:       "sqlite",
		DataSource: "file:" + filepath.Join(t.TempDir(), "m.db"),
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, stores.Close()) }()
	assert.Nil(t, stores.Listener)

	changes, cancel := stores.Notifier.Subscribe(1)
	defer cancel()
	require.NoError(t, stores.Storage.Put(context.Background(), &driver.ChainStorageItem{Key: "0x01"}))
	assert.Equal(t, driver.Change{Table: "chain_storage", Key: "0x01", Op: driver.Update}, <-changes)
}

func TestManagerNilDriver(t *testing.T) {
	d := driver.NamedDriver{Name: "x", Driver: nil}
	assert.Panics(t, func() { NewManager(d) })
}
