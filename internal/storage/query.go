package storage

import (
	sq "github.com/Masterminds/squirrel"

	"walletwise/internal/core"
)

const expensesTable = "expenses"

var expenseColumns = []string{
	"id", "amount", "category", "description", "date", "created_at", "idempotency_key", "synced_at",
}

// selectExpenses starts a SELECT of every expense column.
func selectExpenses(ph sq.PlaceholderFormat) sq.SelectBuilder {
	return sq.Select(expenseColumns...).From(expensesTable).PlaceholderFormat(ph)
}

// listQuery builds the list statement. The ORDER BY clause comes from a
// closed set; request text never reaches it.
func listQuery(q Query, ph sq.PlaceholderFormat) sq.SelectBuilder {
	b := selectExpenses(ph)
	if q.Category != "" {
		b = b.Where(sq.Eq{"category": q.Category})
	}
	switch q.Sort {
	case SortByDateDesc:
		b = b.OrderBy("date DESC", "id DESC")
	default:
		b = b.OrderBy("created_at DESC", "id DESC")
	}
	return b
}

func findByKeyQuery(key string, ph sq.PlaceholderFormat) sq.SelectBuilder {
	return selectExpenses(ph).Where(sq.Eq{"idempotency_key": key}).Limit(1)
}

func getByIDQuery(id int64, ph sq.PlaceholderFormat) sq.SelectBuilder {
	return selectExpenses(ph).Where(sq.Eq{"id": id})
}

func pendingSyncQuery(limit int, ph sq.PlaceholderFormat) sq.SelectBuilder {
	return selectExpenses(ph).
		Where(sq.Eq{"synced_at": nil}).
		OrderBy("id ASC").
		Limit(uint64(limit))
}

// insertQuery builds an INSERT ... RETURNING for the intent. created_at is
// left to the column default so it is stamped while the write lock is held
// and agrees with id order.
func insertQuery(i core.CreateIntent, date any, ph sq.PlaceholderFormat) sq.InsertBuilder {
	return sq.Insert(expensesTable).
		Columns("amount", "category", "description", "date", "idempotency_key").
		Values(i.Amount.Cents, string(i.Category), i.Description, date, i.IdempotencyKey).
		Suffix("RETURNING id, amount, category, description, date, created_at, idempotency_key, synced_at").
		PlaceholderFormat(ph)
}

func markSyncedQuery(id int64, at any, ph sq.PlaceholderFormat) sq.UpdateBuilder {
	return sq.Update(expensesTable).
		Set("synced_at", at).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(ph)
}
