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

const depositColumns = "id, deposit_tx_hash, request_hash, sender, receiver, asset_id, amount, status, message, created_at, updated_at"

// DepositStore persists Ethereum to SORA transfers
type DepositStore struct {
	db       *sql.DB
	table    string
	dialect  Dialect
	notifier driver.Notifier
}

func NewDepositStore(db *sql.DB, table string, dialect Dialect, notifier driver.Notifier) *DepositStore {
	return &DepositStore{db: db, table: table, dialect: dialect, notifier: notifier}
}

func (s *DepositStore) GetSchema() []string {
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			deposit_tx_hash TEXT NOT NULL,
			request_hash TEXT NOT NULL DEFAULT '',
			sender TEXT NOT NULL,
			receiver TEXT NOT NULL,
			asset_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			status INT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS status_%s ON %s ( status );`, s.table, s.table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS deposit_%s ON %s ( deposit_tx_hash );`, s.table, s.table),
	}
}

func (s *DepositStore) CreateSchema() error {
	return InitSchema(s.db, s.GetSchema()...)
}

func (s *DepositStore) Add(ctx context.Context, r *driver.DepositRecord) error {
	query, err := NewInsertInto(s.table).Rows(depositColumns).Compile()
	if err != nil {
		return errors.Wrapf(err, "failed to compile query")
	}
	now := utc(time.Time{})
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	logger.Debug(query, r.ID, r.DepositTxHash, r.Status)

	if _, err := s.db.ExecContext(ctx, query, append([]any{r.ID, r.DepositTxHash}, s.values(r)...)...); err != nil {
		return errors.Wrapf(err, "failed adding deposit [%s]", r.ID)
	}
	s.notifier.Notify(driver.Change{Table: s.table, Key: r.ID, Op: driver.Insert})
	return nil
}

func (s *DepositStore) values(r *driver.DepositRecord) []any {
	return []any{
		r.RequestHash,
		r.Sender,
		r.Receiver,
		r.AssetID,
		amountToString(r.Amount),
		int(r.Status),
		r.Message,
		utc(r.CreatedAt),
		utc(r.UpdatedAt),
	}
}

func (s *DepositStore) Get(ctx context.Context, id string) (*driver.DepositRecord, error) {
	query, err := NewSelect(depositColumns).From(s.table).Where("id = $1").Compile()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile query")
	}
	logger.Debug(query, id)
	r, err := scanDeposit(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(driver.ErrNotFound, "deposit [%s]", id)
		}
		return nil, errors.Wrapf(err, "failed getting deposit [%s]", id)
	}
	return r, nil
}

func (s *DepositStore) QueryByStatus(ctx context.Context, statuses ...driver.DepositStatus) ([]*driver.DepositRecord, error) {
	values := make([]any, len(statuses))
	for i, st := range statuses {
		values[i] = int(st)
	}
	c := (&Conditions{}).In("status", values...)
	query, err := NewSelect(depositColumns).From(s.table).Where(c.String()).OrderBy("created_at, id").Compile()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile query")
	}
	logger.Debug(query, c.Args())

	rows, err := s.db.QueryContext(ctx, query, c.Args()...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed querying deposits")
	}
	defer Close(rows)
	var res []*driver.DepositRecord
	for rows.Next() {
		r, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *DepositStore) UpdateStatus(ctx context.Context, id string, from, to driver.DepositStatus, mutate driver.DepositMutator) error {
	err := WithTx(ctx, s.db, func(tx *sql.Tx) error {
		query, err := NewSelect(depositColumns).From(s.table).Where("id = $1").Suffix(s.dialect.LockSuffix).Compile()
		if err != nil {
			return errors.Wrapf(err, "failed to compile query")
		}
		logger.Debug(query, id)
		r, err := scanDeposit(tx.QueryRowContext(ctx, query, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errors.Wrapf(driver.ErrNotFound, "deposit [%s]", id)
			}
			return errors.Wrapf(err, "failed getting deposit [%s]", id)
		}
		if r.Status != from {
			return errors.Wrapf(driver.ErrStatusConflict, "deposit [%s] is [%s], expected [%s]", id, r.Status, from)
		}
		if mutate != nil {
			mutate(r)
		}
		r.Status = to
		r.UpdatedAt = utc(time.Time{})

		update, err := NewUpdate(s.table).
			Set("request_hash, sender, receiver, asset_id, amount, status, message, created_at, updated_at").
			Where("id = $10 AND status = $11").
			Compile()
		if err != nil {
			return errors.Wrapf(err, "failed to compile query")
		}
		logger.Debug(update, id, from, to)
		res, err := tx.ExecContext(ctx, update, append(s.values(r), id, int(from))...)
		if err != nil {
			return errors.Wrapf(err, "failed updating deposit [%s]", id)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return errors.Wrapf(driver.ErrStatusConflict, "deposit [%s] changed concurrently", id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.Notify(driver.Change{Table: s.table, Key: id, Op: driver.Update})
	return nil
}

func scanDeposit(row scanner) (*driver.DepositRecord, error) {
	var (
		r      driver.DepositRecord
		amount string
		status int
	)
	err := row.Scan(
		&r.ID,
		&r.DepositTxHash,
		&r.RequestHash,
		&r.Sender,
		&r.Receiver,
		&r.AssetID,
		&amount,
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
	r.Status = driver.DepositStatus(status)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}
