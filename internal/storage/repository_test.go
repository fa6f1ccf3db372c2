package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletwise/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"), 4)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func intent(key string, cents int64, category core.Category, date core.Date) core.CreateIntent {
	return core.CreateIntent{
		Amount:         core.Money{Cents: cents},
		Category:       category,
		Description:    "expense " + key,
		Date:           date,
		IdempotencyKey: key,
	}
}

func TestSQLiteRepository_InsertAndFind(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.FindByIdempotencyKey(ctx, "k1")
	require.ErrorIs(t, err, ErrNotFound)

	created, err := repo.Insert(ctx, intent("k1", 1230, core.Food, core.NewDate(2024, 1, 1)))
	require.NoError(t, err)
	assert.Positive(t, created.ID)
	assert.Equal(t, int64(1230), created.Amount.Cents)
	assert.Equal(t, core.Food, created.Category)
	assert.Equal(t, "2024-01-01", created.Date.String())
	assert.False(t, created.CreatedAt.IsZero())
	assert.Nil(t, created.SyncedAt)

	found, err := repo.FindByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, created, found)
}

func TestSQLiteRepository_DuplicateKey(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Insert(ctx, intent("dup", 100, core.Food, core.NewDate(2024, 1, 1)))
	require.NoError(t, err)

	_, err = repo.Insert(ctx, intent("dup", 999, core.Travel, core.NewDate(2024, 2, 1)))
	require.ErrorIs(t, err, ErrDuplicateIdempotencyKey)
}

func TestSQLiteRepository_OtherConstraintsPropagate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("unique index on another column", func(t *testing.T) {
		_, err := repo.db.ExecContext(ctx, "CREATE UNIQUE INDEX test_unique_description ON expenses(description)")
		require.NoError(t, err)

		first := intent("a", 100, core.Food, core.NewDate(2024, 1, 1))
		first.Description = "same"
		_, err = repo.Insert(ctx, first)
		require.NoError(t, err)

		second := intent("b", 100, core.Food, core.NewDate(2024, 1, 1))
		second.Description = "same"
		_, err = repo.Insert(ctx, second)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrDuplicateIdempotencyKey), "violation on description must not look like a token conflict")
	})

	t.Run("check constraint", func(t *testing.T) {
		_, err := repo.Insert(ctx, intent("c", 0, core.Food, core.NewDate(2024, 1, 1)))
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrDuplicateIdempotencyKey))
	})
}

func TestSQLiteRepository_Query(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	empty, err := repo.Query(ctx, Query{})
	require.NoError(t, err)
	require.NotNil(t, empty)
	assert.Empty(t, empty)

	jan, err := repo.Insert(ctx, intent("jan", 100, core.Food, core.NewDate(2024, 1, 1)))
	require.NoError(t, err)
	mar, err := repo.Insert(ctx, intent("mar", 200, core.Food, core.NewDate(2024, 3, 1)))
	require.NoError(t, err)
	feb, err := repo.Insert(ctx, intent("feb", 300, core.Travel, core.NewDate(2024, 2, 1)))
	require.NoError(t, err)

	ids := func(es []core.Expense) []int64 {
		out := make([]int64, len(es))
		for i, e := range es {
			out[i] = e.ID
		}
		return out
	}

	byDate, err := repo.Query(ctx, Query{Sort: SortByDateDesc})
	require.NoError(t, err)
	assert.Equal(t, []int64{mar.ID, feb.ID, jan.ID}, ids(byDate))

	byCreated, err := repo.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, []int64{feb.ID, mar.ID, jan.ID}, ids(byCreated))

	food, err := repo.Query(ctx, Query{Category: "Food"})
	require.NoError(t, err)
	assert.Equal(t, []int64{mar.ID, jan.ID}, ids(food))

	lower, err := repo.Query(ctx, Query{Category: "food"})
	require.NoError(t, err)
	assert.Empty(t, lower, "category filter is case-sensitive")
}

func TestSQLiteRepository_DateTiesBreakByID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.Insert(ctx, intent("t1", 100, core.Food, core.NewDate(2024, 1, 1)))
	require.NoError(t, err)
	second, err := repo.Insert(ctx, intent("t2", 100, core.Food, core.NewDate(2024, 1, 1)))
	require.NoError(t, err)

	got, err := repo.Query(ctx, Query{Sort: SortByDateDesc})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)
}

func TestSQLiteRepository_ConcurrentInsertSameKey(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	const workers = 20
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
		failures   []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Insert(ctx, intent("race", 500, core.Food, core.NewDate(2024, 1, 1)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrDuplicateIdempotencyKey):
				duplicates++
			default:
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, failures)
	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, duplicates)

	all, err := repo.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteRepository_SyncBookkeeping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a, err := repo.Insert(ctx, intent("a", 100, core.Food, core.NewDate(2024, 1, 1)))
	require.NoError(t, err)
	b, err := repo.Insert(ctx, intent("b", 100, core.Food, core.NewDate(2024, 1, 2)))
	require.NoError(t, err)

	pending, err := repo.PendingSync(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, a.ID, pending[0].ID)

	require.NoError(t, repo.MarkSynced(ctx, a.ID))

	pending, err = repo.PendingSync(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)

	got, err := repo.GetExpense(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SyncedAt)

	_, err = repo.GetExpense(ctx, 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteRepository_DefaultOrderFollowsInsertionUnderConcurrency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	// Two handles on one file behave like two server processes.
	repos := make([]*SQLiteRepository, 2)
	for i := range repos {
		repo, err := NewSQLiteRepository(path, 4)
		require.NoError(t, err)
		t.Cleanup(func() { repo.Close() })
		repos[i] = repo
	}

	const writers = 200
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []error
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("order-%d", i)
			_, err := repos[i%len(repos)].Insert(ctx, intent(key, 100, core.Food, core.NewDate(2024, 1, 1)))
			if err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Empty(t, failures)

	all, err := repos[0].Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, writers)
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i-1].ID, all[i].ID, "position %d", i)
		assert.False(t, all[i-1].CreatedAt.Before(all[i].CreatedAt), "created_at must not decrease with id at position %d", i)
	}
}
