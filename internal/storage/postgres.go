package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"walletwise/internal/core"
)

const (
	pgUniqueViolation     = "23505"
	idempotencyConstraint = "expenses_idempotency_key_unique"
)

// PostgresRepository is a ledger store backed by a pgx connection pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var (
	_ Store     = (*PostgresRepository)(nil)
	_ SyncStore = (*PostgresRepository)(nil)
)

func NewPostgresRepository(ctx context.Context, databaseURL string, maxConns int32) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunPostgresMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.InfoContext(ctx, "Database connection established",
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database)

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) FindByIdempotencyKey(ctx context.Context, key string) (core.Expense, error) {
	query, args, err := findByKeyQuery(key, sq.Dollar).ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build find query: %w", err)
	}

	e, err := scanPostgresExpense(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("find expense by idempotency key: %w", err)
	}
	return e, nil
}

// Insert relies on the database for created_at so that every writer shares one clock.
func (r *PostgresRepository) Insert(ctx context.Context, intent core.CreateIntent) (core.Expense, error) {
	query, args, err := insertQuery(intent, intent.Date.Time, sq.Dollar).ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build insert query: %w", err)
	}

	e, err := scanPostgresExpense(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isPostgresKeyViolation(err) {
			return core.Expense{}, ErrDuplicateIdempotencyKey
		}
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to Postgres",
		"id", e.ID,
		"idempotency_key", e.IdempotencyKey,
		"amount_cents", e.Amount.Cents,
		"category", e.Category)

	return e, nil
}

func (r *PostgresRepository) Query(ctx context.Context, q Query) ([]core.Expense, error) {
	query, args, err := listQuery(q, sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	return r.queryExpenses(ctx, query, args...)
}

func (r *PostgresRepository) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	query, args, err := getByIDQuery(id, sq.Dollar).ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build get query: %w", err)
	}

	e, err := scanPostgresExpense(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return e, nil
}

func (r *PostgresRepository) PendingSync(ctx context.Context, limit int) ([]core.Expense, error) {
	query, args, err := pendingSyncQuery(limit, sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending sync query: %w", err)
	}
	expenses, err := r.queryExpenses(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get pending sync expenses: %w", err)
	}
	return expenses, nil
}

func (r *PostgresRepository) MarkSynced(ctx context.Context, id int64) error {
	query, args, err := markSyncedQuery(id, time.Now().UTC(), sq.Dollar).ToSql()
	if err != nil {
		return fmt.Errorf("build mark synced query: %w", err)
	}
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("mark expense synced: %w", err)
	}

	slog.InfoContext(ctx, "Expense marked as synced", "id", id)
	return nil
}

func (r *PostgresRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanPostgresExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

func scanPostgresExpense(row rowScanner) (core.Expense, error) {
	var (
		e        core.Expense
		category string
		date     time.Time
	)
	if err := row.Scan(&e.ID, &e.Amount.Cents, &category, &e.Description, &date, &e.CreatedAt, &e.IdempotencyKey, &e.SyncedAt); err != nil {
		return core.Expense{}, err
	}
	e.Category = core.Category(category)
	e.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

// isPostgresKeyViolation reports whether err is a unique_violation raised
// by the idempotency key constraint.
func isPostgresKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == idempotencyConstraint
}
