// Package memory is an in-process sheets mirror for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"walletwise/internal/core"
	ports "walletwise/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows []core.Expense
}

var _ ports.Mirror = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// Append stores the expense and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, e core.Expense) (string, error) {
	if e.ID <= 0 || e.IdempotencyKey == "" {
		return "", fmt.Errorf("append: expense must be stored before mirroring (id=%d)", e.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, e)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) FindRow(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.rows {
		if e.IdempotencyKey == key {
			return fmt.Sprintf("mem:%d", i+1), true, nil
		}
	}
	return "", false, nil
}

// Rows returns a copy of every appended row.
func (s *Store) Rows() []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Expense(nil), s.rows...)
}
