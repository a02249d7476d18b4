/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package driver

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when the requested record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict is returned when a status transition finds the record in another status
	ErrStatusConflict = errors.New("status conflict")
)

// ChainStorageStore is the local cache of subscribed chain storage items
type ChainStorageStore interface {
	// Get returns the item stored under key. It returns nil without error if the key is not found.
	Get(ctx context.Context, key string) (*ChainStorageItem, error)
	Put(ctx context.Context, item *ChainStorageItem) error
	Delete(ctx context.Context, key string) error
	// Keys lists all stored keys
	Keys(ctx context.Context) ([]string, error)
}

// TransactionStore persists the transaction history of the local account
type TransactionStore interface {
	// Get returns ErrNotFound if no record has the given hash
	Get(ctx context.Context, txHash string) (*TransactionRecord, error)
	Query(ctx context.Context, params QueryTransactionsParams) ([]*TransactionRecord, error)
	// Upsert writes all records atomically. A committed or failed record is never reverted to pending.
	Upsert(ctx context.Context, records ...*TransactionRecord) error
	// FailStale marks as failed the pending records older than the given time and returns them
	FailStale(ctx context.Context, olderThan time.Time) ([]string, error)
}

// WithdrawMutator is applied to a record inside a status transition
type WithdrawMutator func(r *WithdrawRecord)

type WithdrawStore interface {
	Add(ctx context.Context, r *WithdrawRecord) error
	Get(ctx context.Context, id string) (*WithdrawRecord, error)
	QueryByStatus(ctx context.Context, statuses ...WithdrawStatus) ([]*WithdrawRecord, error)
	// UpdateStatus moves the record from one status to another, applying mutate to the other fields.
	// It returns ErrStatusConflict if the record is no longer in from.
	UpdateStatus(ctx context.Context, id string, from, to WithdrawStatus, mutate WithdrawMutator) error
}

type DepositMutator func(r *DepositRecord)

type DepositStore interface {
	Add(ctx context.Context, r *DepositRecord) error
	Get(ctx context.Context, id string) (*DepositRecord, error)
	QueryByStatus(ctx context.Context, statuses ...DepositStatus) ([]*DepositRecord, error)
	UpdateStatus(ctx context.Context, id string, from, to DepositStatus, mutate DepositMutator) error
}

// Operation is the kind of change applied to a row
type Operation int

const (
	Unknown Operation = iota
	Insert
	Update
	Delete
)

var OperationMessage = map[Operation]string{
	Unknown: "UNKNOWN",
	Insert:  "INSERT",
	Update:  "UPDATE",
	Delete:  "DELETE",
}

func (o Operation) String() string { return OperationMessage[o] }

// ParseOperation maps the trigger operation names to Operation
func ParseOperation(s string) Operation {
	for k, v := range OperationMessage {
		if v == s {
			return k
		}
	}
	return Unknown
}

// Change describes a write on a table
type Change struct {
	Table string
	Key   string
	Op    Operation
}

// Notifier delivers Changes to subscribers
type Notifier interface {
	Notify(changes ...Change)
	// Subscribe returns a channel receiving the changes and a function releasing it
	Subscribe(buffer int) (<-chan Change, func())
}

// Listener forwards the changes made by other processes until the context is done
type Listener interface {
	Listen(ctx context.Context) error
}

// Stores groups the stores opened on one database
type Stores struct {
	Storage      ChainStorageStore
	Transactions TransactionStore
	Withdrawals  WithdrawStore
	Deposits     DepositStore
	Notifier     Notifier
	Tables       TableNames
	// Listener is nil when the persistence does not deliver remote changes
	Listener Listener
	closer   func() error
}

// TableNames are the names of the tables backing the stores
type TableNames struct {
	Storage      string
	Transactions string
	Withdrawals  string
	Deposits     string
}

func NewStores(storage ChainStorageStore, txs TransactionStore, ws WithdrawStore, ds DepositStore, n Notifier, tables TableNames, closer func() error) *Stores {
	return &Stores{Storage: storage, Transactions: txs, Withdrawals: ws, Deposits: ds, Notifier: n, Tables: tables, closer: closer}
}

func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// Opts are the options a Driver opens the stores with
type Opts struct {
	DataSource      string
	MaxOpenConns    int
	TablePrefix     string
	SkipCreateTable bool
	SkipPragmas     bool
	Notifications   bool
}

// Driver opens the stores on a given persistence
type Driver interface {
	Open(opts Opts, notifier Notifier) (*Stores, error)
}

// NamedDriver binds a driver to the persistence type it serves
type NamedDriver struct {
	Name   string
	Driver Driver
}
