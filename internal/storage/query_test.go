package storage

import (
	"errors"
	"fmt"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletwise/internal/core"
)

func TestListQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    Query
		ph       sq.PlaceholderFormat
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "default sort, no filter",
			query:   Query{},
			ph:      sq.Question,
			wantSQL: "SELECT id, amount, category, description, date, created_at, idempotency_key, synced_at FROM expenses ORDER BY created_at DESC, id DESC",
		},
		{
			name:     "date sort with category",
			query:    Query{Category: "Food", Sort: SortByDateDesc},
			ph:       sq.Question,
			wantSQL:  "SELECT id, amount, category, description, date, created_at, idempotency_key, synced_at FROM expenses WHERE category = ? ORDER BY date DESC, id DESC",
			wantArgs: []any{"Food"},
		},
		{
			name:     "postgres placeholders",
			query:    Query{Category: "Travel"},
			ph:       sq.Dollar,
			wantSQL:  "SELECT id, amount, category, description, date, created_at, idempotency_key, synced_at FROM expenses WHERE category = $1 ORDER BY created_at DESC, id DESC",
			wantArgs: []any{"Travel"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := listQuery(tt.query, tt.ph).ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			if tt.wantArgs == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}

func TestInsertQuery(t *testing.T) {
	i := core.CreateIntent{
		Amount:         core.Money{Cents: 1230},
		Category:       core.Food,
		Description:    "lunch",
		Date:           core.NewDate(2024, 1, 1),
		IdempotencyKey: "k",
	}

	sql, args, err := insertQuery(i, "2024-01-01", sq.Dollar).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO expenses (amount,category,description,date,idempotency_key) VALUES ($1,$2,$3,$4,$5) RETURNING id, amount, category, description, date, created_at, idempotency_key, synced_at", sql)
	assert.Equal(t, []any{int64(1230), "Food", "lunch", "2024-01-01", "k"}, args)
}

func TestPendingSyncQuery(t *testing.T) {
	sql, args, err := pendingSyncQuery(25, sq.Dollar).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, amount, category, description, date, created_at, idempotency_key, synced_at FROM expenses WHERE synced_at IS NULL ORDER BY id ASC LIMIT 25", sql)
	assert.Empty(t, args)
}

func TestIsPostgresKeyViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"token constraint", &pgconn.PgError{Code: "23505", ConstraintName: "expenses_idempotency_key_unique"}, true},
		{"wrapped token constraint", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "expenses_idempotency_key_unique"}), true},
		{"other unique constraint", &pgconn.PgError{Code: "23505", ConstraintName: "expenses_pkey"}, false},
		{"check violation", &pgconn.PgError{Code: "23514", ConstraintName: "expenses_amount_check"}, false},
		{"not a pg error", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isPostgresKeyViolation(tt.err))
		})
	}
}
