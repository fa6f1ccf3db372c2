// Package storage holds the ledger stores. Every store enforces uniqueness of
// the idempotency key atomically with insert and assigns increasing ids.
package storage

import (
	"context"
	"errors"

	"walletwise/internal/core"
)

var (
	// ErrNotFound is returned by lookups that match no record.
	ErrNotFound = errors.New("expense not found")
	// ErrDuplicateIdempotencyKey is returned by Insert when the uniqueness
	// constraint on the idempotency key rejected the row. Violations of any
	// other constraint are returned as ordinary errors.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// SortMode selects the ordering of a list query.
type SortMode int

const (
	// SortByCreatedDesc orders by created_at, newest first. Default.
	SortByCreatedDesc SortMode = iota
	// SortByDateDesc orders by calendar date, most recent first.
	SortByDateDesc
)

func (s SortMode) String() string {
	if s == SortByDateDesc {
		return "date_desc"
	}
	return "created_desc"
}

// Query is a list request. An empty Category means no filter.
type Query struct {
	Category string
	Sort     SortMode
}

// Store is the ledger store used by the create and list paths.
type Store interface {
	FindByIdempotencyKey(ctx context.Context, key string) (core.Expense, error)
	Insert(ctx context.Context, intent core.CreateIntent) (core.Expense, error)
	Query(ctx context.Context, q Query) ([]core.Expense, error)
	Ping(ctx context.Context) error
	Close() error
}

// SyncStore is the view of the store used by the sheets mirror.
type SyncStore interface {
	GetExpense(ctx context.Context, id int64) (core.Expense, error)
	PendingSync(ctx context.Context, limit int) ([]core.Expense, error)
	MarkSynced(ctx context.Context, id int64) error
}
