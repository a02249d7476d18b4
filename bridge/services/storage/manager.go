/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package storage

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/config"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/notifier"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/sql/postgres"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/sql/sqlite"
)

var logger = logging.MustGetLogger("storage")

// Manager opens the stores with the driver selected by the persistence type
type Manager struct {
	drivers map[string]driver.Driver
}

// NewManager returns a manager knowing the passed drivers.
// It panics if two drivers have the same name.
func NewManager(drivers ...driver.NamedDriver) *Manager {
	m := &Manager{drivers: map[string]driver.Driver{}}
	for _, d := range drivers {
		if d.Driver == nil {
			panic("driver is nil")
		}
		if _, dup := m.drivers[d.Name]; dup {
			panic("driver registered twice: " + d.Name)
		}
		m.drivers[d.Name] = d.Driver
	}
	return m
}

// NewDefaultManager knows the sqlite and postgres drivers
func NewDefaultManager() *Manager {
	return NewManager(sqlite.NewNamedDriver(), postgres.NewNamedDriver())
}

// Drivers returns a sorted list of the names of the known drivers.
func (m *Manager) Drivers() []string {
	list := make([]string, 0, len(m.drivers))
	for name := range m.drivers {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

// Open opens the stores described by cfg. Changes are published on a fresh in-process notifier.
func (m *Manager) Open(cfg config.PersistenceConfig) (*driver.Stores, error) {
	d, ok := m.drivers[cfg.Type]
	if !ok {
		return nil, errors.Errorf("persistence type [%s] not found, available %v", cfg.Type, m.Drivers())
	}
	logger.Infof("opening [%s] stores with table prefix [%s]", cfg.Type, cfg.TablePrefix)
	stores, err := d.Open(driver.Opts{
		DataSource:      cfg.DataSource,
		MaxOpenConns:    cfg.MaxOpenConns,
		TablePrefix:     cfg.TablePrefix,
		SkipCreateTable: cfg.SkipCreateTable,
		SkipPragmas:     cfg.SkipPragmas,
		Notifications:   cfg.Notifications,
	}, notifier.New())
	if err != nil {
		return nil, errors.WithMessagef(err, "failed opening [%s] stores", cfg.Type)
	}
	return stores, nil
}
