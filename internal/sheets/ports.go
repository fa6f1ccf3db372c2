package sheets

import (
	"context"

	"walletwise/internal/core"
)

// Ports for outbound adapters.
type (
	// ExpenseWriter appends one record as a row of the mirror sheet.
	ExpenseWriter interface {
		Append(ctx context.Context, e core.Expense) (rowRef string, err error)
	}

	// RowFinder locates the row already written for an idempotency key.
	RowFinder interface {
		FindRow(ctx context.Context, idempotencyKey string) (rowRef string, found bool, err error)
	}

	// Mirror is the full sheets adapter used by the sync worker.
	Mirror interface {
		ExpenseWriter
		RowFinder
	}
)
