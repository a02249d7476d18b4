/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
)

const transactionColumns = "tx_hash, sender, receiver, asset_id, amount, fee, tx_type, status, call_path, call, block_number, extrinsic_index, request_hash, stored_at"

type TransactionStore struct {
	db       *sql.DB
	table    string
	dialect  Dialect
	notifier driver.Notifier
}

func NewTransactionStore(db *sql.DB, table string, dialect Dialect, notifier driver.Notifier) *TransactionStore {
	return &TransactionStore{db: db, table: table, dialect: dialect, notifier: notifier}
}

func (s *TransactionStore) GetSchema() []string {
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			tx_hash TEXT NOT NULL PRIMARY KEY,
			sender TEXT NOT NULL DEFAULT '',
			receiver TEXT NOT NULL DEFAULT '',
			asset_id TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL DEFAULT '0',
			fee TEXT NOT NULL DEFAULT '0',
			tx_type INT NOT NULL,
			status INT NOT NULL,
			call_path TEXT NOT NULL DEFAULT '',
			call %s,
			block_number BIGINT,
			extrinsic_index INT,
			request_hash TEXT NOT NULL DEFAULT '',
			stored_at TIMESTAMP NOT NULL
		);`, s.table, s.dialect.BlobType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS status_%s ON %s ( status );`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS sender_%s ON %s ( sender );`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS receiver_%s ON %s ( receiver );`, s.table, s.table),
	}
}

func (s *TransactionStore) CreateSchema() error {
	return InitSchema(s.db, s.GetSchema()...)
}

func (s *TransactionStore) Get(ctx context.Context, txHash string) (*driver.TransactionRecord, error) {
	query, err := NewSelect(transactionColumns).From(s.table).Where("tx_hash = $1").Compile()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile query")
	}
	logger.Debug(query, txHash)

	r, err := scanTransaction(s.db.QueryRowContext(ctx, query, txHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(driver.ErrNotFound, "transaction [%s]", txHash)
		}
		return nil, errors.Wrapf(err, "failed getting transaction [%s]", txHash)
	}
	return r, nil
}

func (s *TransactionStore) Query(ctx context.Context, params driver.QueryTransactionsParams) ([]*driver.TransactionRecord, error) {
	c := &Conditions{}
	if len(params.Account) != 0 {
		c.AnyEq(params.Account, "sender", "receiver")
	}
	statuses := make([]any, len(params.Statuses))
	for i, st := range params.Statuses {
		statuses[i] = int(st)
	}
	c.In("status", statuses...)
	types := make([]any, len(params.Types))
	for i, t := range params.Types {
		types[i] = int(t)
	}
	c.In("tx_type", types...)
	if !params.Before.IsZero() {
		c.Lt("stored_at", params.Before.UTC())
	}

	sel := NewSelect(transactionColumns).From(s.table).Where(c.String()).OrderBy("stored_at DESC, tx_hash")
	if params.Limit > 0 {
		sel.Limit(c.Next(params.Limit))
	}
	query, err := sel.Compile()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile query")
	}
	logger.Debug(query, c.Args())

	rows, err := s.db.QueryContext(ctx, query, c.Args()...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed querying transactions")
	}
	defer Close(rows)

	var res []*driver.TransactionRecord
	for rows.Next() {
		r, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// Upsert inserts the records or updates the existing ones with the same hash.
// Committed and failed records found in a block are never overwritten, a failed record
// without a block may still be completed by a later observation.
func (s *TransactionStore) Upsert(ctx context.Context, records ...*driver.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}
	query, err := NewInsertInto(s.table).
		Rows(transactionColumns).
		OnConflict("tx_hash", "sender, receiver, asset_id, amount, fee, tx_type, status, call_path, call, block_number, extrinsic_index, request_hash, stored_at").
		UpdateWhere(fmt.Sprintf("%s.status = %d OR (excluded.status <> %d AND %s.block_number IS NULL)", s.table, driver.Pending, driver.Pending, s.table)).
		Compile()
	if err != nil {
		return errors.Wrapf(err, "failed to compile query")
	}

	changes := make([]driver.Change, 0, len(records))
	err = WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, r := range records {
			logger.Debugf("upserting %s at block [%s]", r.String(), blockLabel(r.BlockNumber))
			res, err := tx.ExecContext(ctx, query,
				r.TxHash,
				r.Sender,
				r.Receiver,
				r.AssetID,
				amountToString(r.Amount),
				amountToString(r.Fee),
				int(r.Type),
				int(r.Status),
				r.CallPath,
				r.Call,
				nullableUint64(r.BlockNumber),
				nullableUint32(r.ExtrinsicIndex),
				r.RequestHash,
				utc(r.Timestamp),
			)
			if err != nil {
				return errors.Wrapf(err, "failed upserting transaction [%s]", r.TxHash)
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				changes = append(changes, driver.Change{Table: s.table, Key: r.TxHash, Op: driver.Update})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.Notify(changes...)
	return nil
}

func (s *TransactionStore) FailStale(ctx context.Context, olderThan time.Time) ([]string, error) {
	var hashes []string
	err := WithTx(ctx, s.db, func(tx *sql.Tx) error {
		query, err := NewSelect("tx_hash").From(s.table).Where("status = $1 AND stored_at < $2").Compile()
		if err != nil {
			return errors.Wrapf(err, "failed to compile query")
		}
		logger.Debug(query, driver.Pending, olderThan)
		rows, err := tx.QueryContext(ctx, query, int(driver.Pending), olderThan.UTC())
		if err != nil {
			return errors.Wrapf(err, "failed querying stale transactions")
		}
		for rows.Next() {
			var h string
			if err := rows.Scan(&h); err != nil {
				Close(rows)
				return err
			}
			hashes = append(hashes, h)
		}
		Close(rows)
		if err := rows.Err(); err != nil {
			return err
		}
		if len(hashes) == 0 {
			return nil
		}

		update, err := NewUpdate(s.table).Set("status").Where("status = $2 AND stored_at < $3").Compile()
		if err != nil {
			return errors.Wrapf(err, "failed to compile query")
		}
		logger.Debug(update, driver.Failed, driver.Pending, olderThan)
		if _, err := tx.ExecContext(ctx, update, int(driver.Failed), int(driver.Pending), olderThan.UTC()); err != nil {
			return errors.Wrapf(err, "failed marking stale transactions")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	changes := make([]driver.Change, len(hashes))
	for i, h := range hashes {
		changes[i] = driver.Change{Table: s.table, Key: h, Op: driver.Update}
	}
	s.notifier.Notify(changes...)
	return hashes, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*driver.TransactionRecord, error) {
	var (
		r              driver.TransactionRecord
		amount, fee    string
		txType, status int
		blockNumber    sql.NullInt64
		extrinsicIndex sql.NullInt64
	)
	err := row.Scan(
		&r.TxHash,
		&r.Sender,
		&r.Receiver,
		&r.AssetID,
		&amount,
		&fee,
		&txType,
		&status,
		&r.CallPath,
		&r.Call,
		&blockNumber,
		&extrinsicIndex,
		&r.RequestHash,
		&r.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	if r.Amount, err = amountFromString(amount); err != nil {
		return nil, err
	}
	if r.Fee, err = amountFromString(fee); err != nil {
		return nil, err
	}
	r.Type = driver.TransactionType(txType)
	r.Status = driver.TxStatus(status)
	if blockNumber.Valid {
		n := uint64(blockNumber.Int64)
		r.BlockNumber = &n
	}
	if extrinsicIndex.Valid {
		i := uint32(extrinsicIndex.Int64)
		r.ExtrinsicIndex = &i
	}
	r.Timestamp = r.Timestamp.UTC()
	return &r, nil
}

func nullableUint64(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableUint32(v *uint32) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// blockLabel formats an optional block number for logs
func blockLabel(n *uint64) string {
	if n == nil {
		return "-"
	}
	return strconv.FormatUint(*n, 10)
}
