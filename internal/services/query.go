package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"walletwise/internal/core"
	"walletwise/internal/log"
	"walletwise/internal/storage"
)

// SortDateDesc is the only sort token clients can ask for. Anything else
// selects the default order, newest record first.
const SortDateDesc = "date_desc"

// ParseListQuery turns untrusted query parameters into a store query.
// The category is matched exactly as sent; only an empty value means no
// filter. Unknown sort tokens fall back to the default without error.
func ParseListQuery(values url.Values) storage.Query {
	q := storage.Query{
		Category: values.Get("category"),
		Sort:     storage.SortByCreatedDesc,
	}
	if strings.TrimSpace(values.Get("sort")) == SortDateDesc {
		q.Sort = storage.SortByDateDesc
	}
	return q
}

// QueryEngine runs list queries. It is stateless.
type QueryEngine struct {
	store storage.Store
}

func NewQueryEngine(store storage.Store) *QueryEngine {
	return &QueryEngine{store: store}
}

// List returns the matching records in full. An empty result is an empty,
// non-nil slice.
func (e *QueryEngine) List(ctx context.Context, q storage.Query) ([]core.Expense, error) {
	expenses, err := e.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: list expenses: %w", ErrStorage, err)
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}

	log.FromContext(ctx).DebugContext(ctx, "Expenses listed",
		log.FieldCategory, q.Category,
		log.FieldSort, q.Sort.String(),
		log.FieldCount, len(expenses))

	return expenses, nil
}
