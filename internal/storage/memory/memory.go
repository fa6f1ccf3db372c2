// Package memory is an in-process ledger store. It is used for
// DATA_BACKEND=memory and as a deterministic store in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"walletwise/internal/core"
	"walletwise/internal/storage"
)

type Store struct {
	mu     sync.Mutex
	nextID int64
	items  []core.Expense
	byKey  map[string]int // idempotency key -> index into items
	now    func() time.Time
}

var (
	_ storage.Store     = (*Store)(nil)
	_ storage.SyncStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		byKey: make(map[string]int),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// NewWithClock returns a store stamping created_at from now. Tests use it to
// control ordering.
func NewWithClock(now func() time.Time) *Store {
	s := New()
	s.now = now
	return s
}

func (s *Store) FindByIdempotencyKey(_ context.Context, key string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byKey[key]
	if !ok {
		return core.Expense{}, storage.ErrNotFound
	}
	return s.items[idx], nil
}

// Insert is check-and-insert under one lock, which gives the same
// guarantee as a unique index.
func (s *Store) Insert(_ context.Context, intent core.CreateIntent) (core.Expense, error) {
	if err := intent.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[intent.IdempotencyKey]; ok {
		return core.Expense{}, storage.ErrDuplicateIdempotencyKey
	}
	s.nextID++
	e := core.Expense{
		ID:             s.nextID,
		Amount:         intent.Amount,
		Category:       intent.Category,
		Description:    intent.Description,
		Date:           intent.Date,
		CreatedAt:      s.now(),
		IdempotencyKey: intent.IdempotencyKey,
	}
	s.items = append(s.items, e)
	s.byKey[e.IdempotencyKey] = len(s.items) - 1
	return e, nil
}

func (s *Store) Query(_ context.Context, q storage.Query) ([]core.Expense, error) {
	s.mu.Lock()
	out := make([]core.Expense, 0, len(s.items))
	for _, e := range s.items {
		if q.Category != "" && string(e.Category) != q.Category {
			continue
		}
		out = append(out, e)
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch q.Sort {
		case storage.SortByDateDesc:
			if !a.Date.Equal(b.Date.Time) {
				return a.Date.After(b.Date.Time)
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		}
		return a.ID > b.ID
	})
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.items {
		if e.ID == id {
			return e, nil
		}
	}
	return core.Expense{}, storage.ErrNotFound
}

func (s *Store) PendingSync(_ context.Context, limit int) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, 0)
	for _, e := range s.items {
		if e.SyncedAt != nil {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkSynced(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			at := s.now()
			s.items[i].SyncedAt = &at
			return nil
		}
	}
	return storage.ErrNotFound
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
