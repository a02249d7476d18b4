/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/sql/common"
	_ "modernc.org/sqlite"
)

const Persistence = "sqlite"

var logger = logging.MustGetLogger("storage.sqlite")

var Dialect = common.Dialect{Name: Persistence, BlobType: "BLOB"}

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

// Open opens the sqlite database and its stores.
// Notifications across processes are not available on sqlite.
func (d *Driver) Open(opts driver.Opts, notifier driver.Notifier) (*driver.Stores, error) {
	if opts.Notifications {
		return nil, errors.New("notifications are not supported by sqlite")
	}
	db, err := OpenDB(opts.DataSource, opts.SkipPragmas)
	if err != nil {
		return nil, err
	}
	stores, err := common.NewStores(db, Dialect, opts, notifier)
	if err != nil {
		common.Close(db)
		return nil, err
	}
	return stores, nil
}

// OpenDB opens a sqlite database with a single connection, serializing writers
func OpenDB(dataSourceName string, skipPragmas bool) (*sql.DB, error) {
	logger.Infof("opening sqlite database [%s]", dataSourceName)
	if len(dataSourceName) == 0 {
		return nil, errors.New("sqlite data source not set")
	}
	if !skipPragmas {
		dataSourceName = withPragmas(dataSourceName)
	}
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening sqlite database")
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		common.Close(db)
		return nil, errors.Wrapf(err, "sqlite database unreachable")
	}
	return db, nil
}

func withPragmas(dataSource string) string {
	sep := "?"
	if strings.Contains(dataSource, "?") {
		sep = "&"
	}
	sb := new(strings.Builder)
	sb.WriteString(dataSource)
	for _, p := range []string{"journal_mode(WAL)", "busy_timeout(5000)", "foreign_keys(1)"} {
		if strings.Contains(dataSource, strings.Split(p, "(")[0]) {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s_pragma=%s", sep, p))
		sep = "&"
	}
	return sb.String()
}
