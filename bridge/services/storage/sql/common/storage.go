/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
)

// ChainStorageStore keeps the last seen value of every subscribed storage key
type ChainStorageStore struct {
	db       *sql.DB
	table    string
	dialect  Dialect
	notifier driver.Notifier
}

func NewChainStorageStore(db *sql.DB, table string, dialect Dialect, notifier driver.Notifier) *ChainStorageStore {
	return &ChainStorageStore{db: db, table: table, dialect: dialect, notifier: notifier}
}

func (s *ChainStorageStore) GetSchema() string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			storage_key TEXT NOT NULL PRIMARY KEY,
			data %s,
			block_hash TEXT NOT NULL DEFAULT ''
		);`, s.table, s.dialect.BlobType)
}

func (s *ChainStorageStore) CreateSchema() error {
	return InitSchema(s.db, s.GetSchema())
}

func (s *ChainStorageStore) Get(ctx context.Context, key string) (*driver.ChainStorageItem, error) {
	query, err := NewSelect("data", "block_hash").From(s.table).Where("storage_key = $1").Compile()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile query")
	}
	logger.Debug(query, key)

	item := &driver.ChainStorageItem{Key: key}
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&item.Data, &item.BlockHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed getting storage item [%s]", key)
	}
	return item, nil
}

func (s *ChainStorageStore) Put(ctx context.Context, item *driver.ChainStorageItem) error {
	query, err := NewInsertInto(s.table).Rows("storage_key, data, block_hash").OnConflict("storage_key", "data, block_hash").Compile()
	if err != nil {
		return errors.Wrapf(err, "failed to compile query")
	}
	logger.Debug(query, item.Key, len(item.Data), item.BlockHash)

	if _, err := s.db.ExecContext(ctx, query, item.Key, item.Data, item.BlockHash); err != nil {
		return errors.Wrapf(err, "failed storing item [%s]", item.Key)
	}
	s.notifier.Notify(driver.Change{Table: s.table, Key: item.Key, Op: driver.Update})
	return nil
}

func (s *ChainStorageStore) Delete(ctx context.Context, key string) error {
	query, err := NewDeleteFrom(s.table).Where("storage_key = $1").Compile()
	if err != nil {
		return errors.Wrapf(err, "failed to compile query")
	}
	logger.Debug(query, key)

	res, err := s.db.ExecContext(ctx, query, key)
	if err != nil {
		return errors.Wrapf(err, "failed deleting item [%s]", key)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.notifier.Notify(driver.Change{Table: s.table, Key: key, Op: driver.Delete})
	}
	return nil
}

func (s *ChainStorageStore) Keys(ctx context.Context) ([]string, error) {
	query, err := NewSelect("storage_key").From(s.table).OrderBy("storage_key").Compile()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile query")
	}
	logger.Debug(query)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "failed listing storage keys")
	}
	defer Close(rows)

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
