package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"walletwise/internal/core"
)

// timestampLayout is fixed width so text ordering equals time ordering.
// created_at is written by the column default with millisecond precision;
// both forms parse as RFC 3339.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository is the default ledger store.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ Store     = (*SQLiteRepository)(nil)
	_ SyncStore = (*SQLiteRepository)(nil)
)

// sqliteDSN enables WAL and a busy timeout so concurrent writers queue on
// the database lock instead of failing with SQLITE_BUSY.
func sqliteDSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

func NewSQLiteRepository(dbPath string, maxOpenConns int) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := sqliteDSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// FindByIdempotencyKey returns ErrNotFound when no record carries key.
func (r *SQLiteRepository) FindByIdempotencyKey(ctx context.Context, key string) (core.Expense, error) {
	query, args, err := findByKeyQuery(key, sq.Question).ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build find query: %w", err)
	}

	e, err := scanSQLiteExpense(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("find expense by idempotency key: %w", err)
	}
	return e, nil
}

// Insert stores a new record. A uniqueness violation on the idempotency key
// is reported as ErrDuplicateIdempotencyKey. SQLite takes the write lock
// before evaluating the created_at default, so concurrent writers get
// timestamps in id order.
func (r *SQLiteRepository) Insert(ctx context.Context, intent core.CreateIntent) (core.Expense, error) {
	query, args, err := insertQuery(intent, intent.Date.String(), sq.Question).ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build insert query: %w", err)
	}

	e, err := scanSQLiteExpense(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if isSQLiteKeyViolation(err) {
			return core.Expense{}, ErrDuplicateIdempotencyKey
		}
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"idempotency_key", e.IdempotencyKey,
		"amount_cents", e.Amount.Cents,
		"category", e.Category)

	return e, nil
}

func (r *SQLiteRepository) Query(ctx context.Context, q Query) ([]core.Expense, error) {
	query, args, err := listQuery(q, sq.Question).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	return r.queryExpenses(ctx, query, args...)
}

// GetExpense returns ErrNotFound when id does not exist.
func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	query, args, err := getByIDQuery(id, sq.Question).ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build get query: %w", err)
	}

	e, err := scanSQLiteExpense(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return e, nil
}

// PendingSync returns up to limit records not yet mirrored, oldest first.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]core.Expense, error) {
	query, args, err := pendingSyncQuery(limit, sq.Question).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending sync query: %w", err)
	}
	expenses, err := r.queryExpenses(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get pending sync expenses: %w", err)
	}
	return expenses, nil
}

// MarkSynced marks an expense as successfully mirrored
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	query, args, err := markSyncedQuery(id, r.now().Format(timestampLayout), sq.Question).ToSql()
	if err != nil {
		return fmt.Errorf("build mark synced query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark expense synced: %w", err)
	}

	slog.InfoContext(ctx, "Expense marked as synced", "id", id)
	return nil
}

func (r *SQLiteRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanSQLiteExpense(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteExpense(row rowScanner) (core.Expense, error) {
	var (
		e         core.Expense
		category  string
		date      string
		createdAt string
		syncedAt  sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Amount.Cents, &category, &e.Description, &date, &createdAt, &e.IdempotencyKey, &syncedAt); err != nil {
		return core.Expense{}, err
	}
	e.Category = core.Category(category)

	d, err := core.ParseDate(date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	e.Date = d

	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return core.Expense{}, fmt.Errorf("parse stored created_at %q: %w", createdAt, err)
	}
	if syncedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, syncedAt.String)
		if err != nil {
			return core.Expense{}, fmt.Errorf("parse stored synced_at %q: %w", syncedAt.String, err)
		}
		e.SyncedAt = &t
	}
	return e, nil
}

// isSQLiteKeyViolation reports whether err is a UNIQUE violation on the
// expenses.idempotency_key column and not on any other constraint.
func isSQLiteKeyViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE &&
		strings.Contains(se.Error(), "expenses.idempotency_key")
}
