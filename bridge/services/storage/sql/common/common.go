/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common

import (
	"context"
	"database/sql"
	"math/big"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
)

var logger = logging.MustGetLogger("storage.sql")

var tablePrefixRegexp = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Dialect carries the type names that differ between the supported databases
type Dialect struct {
	Name     string
	BlobType string
	// LockSuffix is appended to selects that precede a compare-and-set
	LockSuffix string
}

// GetTableNames returns the table names for the given prefix
func GetTableNames(prefix string) (driver.TableNames, error) {
	if len(prefix) != 0 && !tablePrefixRegexp.MatchString(prefix) {
		return driver.TableNames{}, errors.Errorf("illegal character in table prefix [%s]", prefix)
	}
	name := func(n string) string {
		if len(prefix) == 0 {
			return n
		}
		return prefix + "_" + n
	}
	return driver.TableNames{
		Storage:      name("chain_storage"),
		Transactions: name("transactions"),
		Withdrawals:  name("withdrawals"),
		Deposits:     name("deposits"),
	}, nil
}

// InitSchema executes the passed statements in one transaction
func InitSchema(db *sql.DB, schemas ...string) (err error) {
	logger.Info("creating tables")
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin schema transaction")
	}
	defer func() {
		if err != nil && tx != nil {
			if rerr := tx.Rollback(); rerr != nil {
				logger.Errorf("failed rolling back schema transaction: %s", rerr)
			}
		}
	}()
	for _, schema := range schemas {
		logger.Debug(schema)
		if _, err = tx.Exec(schema); err != nil {
			return errors.Wrapf(err, "error creating schema: %s", schema)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed committing schema")
	}
	return nil
}

type Closer interface {
	Close() error
}

func Close(closer Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Errorf("failed closing connection: %s", err)
	}
}

// WithTx runs f in a database transaction, committing if f succeeds
func WithTx(ctx context.Context, db *sql.DB, f func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed starting transaction")
	}
	if err := f(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			logger.Errorf("failed rolling back transaction: %s", rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed committing transaction")
	}
	return nil
}

func amountToString(a *big.Int) string {
	if a == nil {
		return "0"
	}
	return a.String()
}

func amountFromString(s string) (*big.Int, error) {
	if len(s) == 0 {
		return big.NewInt(0), nil
	}
	a, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("invalid amount [%s]", s)
	}
	return a, nil
}

// utc normalizes timestamps to the precision both databases keep
func utc(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Microsecond)
}
