/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package postgres

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/sql/common"
)

const Persistence = "postgres"

var logger = logging.MustGetLogger("storage.postgres")

var Dialect = common.Dialect{Name: Persistence, BlobType: "BYTEA", LockSuffix: "FOR UPDATE"}

type Driver struct{}

func NewNamedDriver() driver.NamedDriver {
	return driver.NamedDriver{
		Name:   Persistence,
		Driver: NewDriver(),
	}
}

func NewDriver() *Driver {
	return &Driver{}
}

// Open opens the postgres stores. With notifications enabled, the stores report their
// changes through LISTEN/NOTIFY only, so every process, this one included, sees each change once.
func (d *Driver) Open(opts driver.Opts, notifier driver.Notifier) (*driver.Stores, error) {
	db, err := OpenDB(opts.DataSource, opts.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	storeNotifier := notifier
	if opts.Notifications {
		storeNotifier = discard{}
	}
	stores, err := common.NewStores(db, Dialect, opts, storeNotifier)
	if err != nil {
		common.Close(db)
		return nil, err
	}
	stores.Notifier = notifier
	if !opts.Notifications {
		return stores, nil
	}

	channel := ChannelName(opts.TablePrefix)
	if !opts.SkipCreateTable {
		if err := common.InitSchema(db, TriggerSchemas(channel, stores.Tables)...); err != nil {
			common.Close(db)
			return nil, errors.WithMessagef(err, "failed installing notification triggers")
		}
	}
	stores.Listener = NewListener(opts.DataSource, channel, notifier)
	return stores, nil
}

func OpenDB(dataSourceName string, maxOpenConns int) (*sql.DB, error) {
	logger.Info("connecting to postgres database") // dataSource can contain a password
	if len(dataSourceName) == 0 {
		return nil, errors.New("postgres data source not set")
	}
	db, err := sql.Open("pgx", dataSourceName)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open postgres database")
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if err = db.Ping(); err != nil {
		common.Close(db)
		return nil, errors.Wrapf(err, "postgres database unreachable")
	}
	return db, nil
}

type discard struct{}

func (discard) Notify(...driver.Change) {}

func (discard) Subscribe(int) (<-chan driver.Change, func()) {
	ch := make(chan driver.Change)
	return ch, func() {}
}
