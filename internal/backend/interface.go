package backend

import (
	"context"
	"time"

	"walletwise/internal/cache"
	"walletwise/internal/storage"
)

// Ledger is what a backend provides: the create/list store and the view
// used by the sheets mirror.
type Ledger interface {
	storage.Store
	storage.SyncStore
}

// CleanupFunc releases resources held next to the store.
type CleanupFunc func() error

// Result contains the ledger, its record cache and a cleanup for the cache.
// The ledger is closed by its owner, usually services.ExpenseService.
type Result struct {
	Ledger  Ledger
	Cache   cache.RecordCache
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath       string
	SQLiteMaxOpenConns int

	// Postgres specific
	DatabaseURL      string
	DatabaseMaxConns int

	// Record cache. RedisURL selects Redis over the in-process LRU; a zero
	// CacheSize disables the local cache.
	RedisURL  string
	CacheSize int
	CacheTTL  time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
