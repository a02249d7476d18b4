/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
)

const withdrawColumns = "id, intent_tx_hash, request_hash, transfer_tx_hash, transfer_raw_tx, sender, receiver, asset_id, eth_asset_address, amount, fee, proof, status, message, created_at, updated_at"

// WithdrawStore persists SORA to Ethereum transfers
type WithdrawStore struct {
	db       *sql.DB
	table    string
	dialect  Dialect
	notifier driver.Notifier
}

func NewWithdrawStore(db *sql.DB, table string, dialect Dialect, notifier driver.Notifier) *WithdrawStore {
	return &WithdrawStore{db: db, table: table, dialect: dialect, notifier: notifier}
}

func (s *WithdrawStore) GetSchema() []string {
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			intent_tx_hash TEXT NOT NULL,
			request_hash TEXT NOT NULL DEFAULT '',
			transfer_tx_hash TEXT NOT NULL DEFAULT '',
			transfer_raw_tx %s,
			sender TEXT NOT NULL,
			receiver TEXT NOT NULL,
			asset_id TEXT NOT NULL,
			eth_asset_address TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL,
			fee TEXT NOT NULL DEFAULT '0',
			proof TEXT NOT NULL DEFAULT '',
			status INT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`, s.table, s.dialect.BlobType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS status_%s ON %s ( status );`, s.table, s.table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS intent_%s ON %s ( intent_tx_hash );`, s.table, s.table),
	}
}

func (s *WithdrawStore) CreateSchema() error {
	return InitSchema(s.db, s.GetSchema()...)
}

func (s *WithdrawStore) Add(ctx context.Context, r *driver.WithdrawRecord) error {
	query, err := NewInsertInto(s.table).Rows(withdrawColumns).Compile()
	if err != nil {
		return errors.Wrapf(err, "failed to compile query")
	}
	now := utc(time.Time{})
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	logger.Debug(query, r.ID, r.IntentTxHash, r.Status)

	_, err = s.db.ExecContext(ctx, query, append([]any{r.ID, r.IntentTxHash}, s.values(r)...)...)
	if err != nil {
		return errors.Wrapf(err, "failed adding withdraw [%s]", r.ID)
	}
	s.notifier.Notify(driver.Change{Table: s.table, Key: r.ID, Op: driver.Insert})
	return nil
}

// values returns the mutable columns, from request_hash on
func (s *WithdrawStore) values(r *driver.WithdrawRecord) []any {
	return []any{
		r.RequestHash,
		r.TransferTxHash,
		r.TransferRawTx,
		r.Sender,
		r.Receiver,
		r.AssetID,
		r.EthereumAssetAddress,
		amountToString(r.Amount),
		amountToString(r.Fee),
		string(r.Proof),
		int(r.Status),
		r.Message,
		utc(r.CreatedAt),
		utc(r.UpdatedAt),
	}
}

func (s *WithdrawStore) Get(ctx context.Context, id string) (*driver.WithdrawRecord, error) {
	query, err := NewSelect(withdrawColumns).From(s.table).Where("id = $1").Compile()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile query")
	}
	logger.Debug(query, id)
	r, err := scanWithdraw(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(driver.ErrNotFound, "withdraw [%s]", id)
		}
		return nil, errors.Wrapf(err, "failed getting withdraw [%s]", id)
	}
	return r, nil
}

func (s *WithdrawStore) QueryByStatus(ctx context.Context, statuses ...driver.WithdrawStatus) ([]*driver.WithdrawRecord, error) {
	values := make([]any, len(statuses))
	for i, st := range statuses {
		values[i] = int(st)
	}
	c := (&Conditions{}).In("status", values...)
	query, err := NewSelect(withdrawColumns).From(s.table).Where(c.String()).OrderBy("created_at, id").Compile()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile query")
	}
	logger.Debug(query, c.Args())

	rows, err := s.db.QueryContext(ctx, query, c.Args()...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed querying withdrawals")
	}
	defer Close(rows)
	var res []*driver.WithdrawRecord
	for rows.Next() {
		r, err := scanWithdraw(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *WithdrawStore) UpdateStatus(ctx context.Context, id string, from, to driver.WithdrawStatus, mutate driver.WithdrawMutator) error {
	err := WithTx(ctx, s.db, func(tx *sql.Tx) error {
		query, err := NewSelect(withdrawColumns).From(s.table).Where("id = $1").Suffix(s.dialect.LockSuffix).Compile()
		if err != nil {
			return errors.Wrapf(err, "failed to compile query")
		}
		logger.Debug(query, id)
		r, err := scanWithdraw(tx.QueryRowContext(ctx, query, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errors.Wrapf(driver.ErrNotFound, "withdraw [%s]", id)
			}
			return errors.Wrapf(err, "failed getting withdraw [%s]", id)
		}
		if r.Status != from {
			return errors.Wrapf(driver.ErrStatusConflict, "withdraw [%s] is [%s], expected [%s]", id, r.Status, from)
		}
		if mutate != nil {
			mutate(r)
		}
		r.Status = to
		r.UpdatedAt = utc(time.Time{})

		update, err := NewUpdate(s.table).
			Set("request_hash, transfer_tx_hash, transfer_raw_tx, sender, receiver, asset_id, eth_asset_address, amount, fee, proof, status, message, created_at, updated_at").
			Where("id = $15 AND status = $16").
			Compile()
		if err != nil {
			return errors.Wrapf(err, "failed to compile query")
		}
		logger.Debug(update, id, from, to)
		res, err := tx.ExecContext(ctx, update, append(s.values(r), id, int(from))...)
		if err != nil {
			return errors.Wrapf(err, "failed updating withdraw [%s]", id)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return errors.Wrapf(driver.ErrStatusConflict, "withdraw [%s] changed concurrently", id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.Notify(driver.Change{Table: s.table, Key: id, Op: driver.Update})
	return nil
}

func scanWithdraw(row scanner) (*driver.WithdrawRecord, error) {
	var (
		r           driver.WithdrawRecord
		amount, fee string
		proof       string
		status      int
	)
	err := row.Scan(
		&r.ID,
		&r.IntentTxHash,
		&r.RequestHash,
		&r.TransferTxHash,
		&r.TransferRawTx,
		&r.Sender,
		&r.Receiver,
		&r.AssetID,
		&r.EthereumAssetAddress,
		&amount,
		&fee,
		&proof,
		&status,
		&r.Message,
		&r.CreatedAt,
		&r.UpdatedAt,
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
	if len(proof) != 0 {
		r.Proof = []byte(proof)
	}
	r.Status = driver.WithdrawStatus(status)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}
