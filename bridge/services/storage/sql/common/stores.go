/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common

import (
	"database/sql"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
)

type schemaCreator interface {
	CreateSchema() error
}

// NewStores creates the stores on db, and their tables unless opts says otherwise.
// The returned Stores closes db.
func NewStores(db *sql.DB, dialect Dialect, opts driver.Opts, notifier driver.Notifier) (*driver.Stores, error) {
	tables, err := GetTableNames(opts.TablePrefix)
	if err != nil {
		return nil, err
	}
	storage := NewChainStorageStore(db, tables.Storage, dialect, notifier)
	txs := NewTransactionStore(db, tables.Transactions, dialect, notifier)
	ws := NewWithdrawStore(db, tables.Withdrawals, dialect, notifier)
	ds := NewDepositStore(db, tables.Deposits, dialect, notifier)
	if !opts.SkipCreateTable {
		for _, s := range []schemaCreator{storage, txs, ws, ds} {
			if err := s.CreateSchema(); err != nil {
				return nil, errors.WithMessagef(err, "failed creating schema for [%s]", dialect.Name)
			}
		}
	}
	return driver.NewStores(storage, txs, ws, ds, notifier, tables, db.Close), nil
}
