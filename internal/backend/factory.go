package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"walletwise/internal/cache"
	"walletwise/internal/log"
	"walletwise/internal/storage"
	"walletwise/internal/storage/memory"
)

const cacheCleanupInterval = time.Minute

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend opens the ledger for config.Type and the record cache in
// front of it.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		ledger Ledger
		err    error
	)
	switch config.Type {
	case SQLiteBackend:
		ledger, err = f.createSQLiteLedger(config)
	case PostgresBackend:
		ledger, err = f.createPostgresLedger(ctx, config)
	case MemoryBackend:
		ledger = memory.New()
		f.logger.Info("Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	recordCache, cleanup, err := f.createCache(ctx, config)
	if err != nil {
		return nil, errors.Join(err, ledger.Close())
	}

	return &Result{
		Ledger:  ledger,
		Cache:   recordCache,
		Cleanup: cleanup,
	}, nil
}

func (f *DefaultFactory) createSQLiteLedger(config Config) (Ledger, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, config.SQLiteMaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"max_open_conns", config.SQLiteMaxOpenConns)
	return repo, nil
}

func (f *DefaultFactory) createPostgresLedger(ctx context.Context, config Config) (Ledger, error) {
	repo, err := storage.NewPostgresRepository(ctx, config.DatabaseURL, int32(config.DatabaseMaxConns))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
	}
	f.logger.Info("Initialized Postgres backend", "max_conns", config.DatabaseMaxConns)
	return repo, nil
}

// createCache returns nil when caching is disabled. The resolver treats a
// nil cache as always missing.
func (f *DefaultFactory) createCache(ctx context.Context, config Config) (cache.RecordCache, CleanupFunc, error) {
	if config.RedisURL != "" {
		rc, err := cache.NewRedisRecordCache(ctx, config.RedisURL, config.CacheTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Redis record cache: %w", err)
		}
		f.logger.Info("Initialized Redis record cache", "ttl", config.CacheTTL)
		return rc, rc.Close, nil
	}

	if config.CacheSize == 0 {
		return nil, func() error { return nil }, nil
	}

	local := cache.NewLocalRecordCache(config.CacheSize, config.CacheTTL)
	manager := cache.NewManager(f.logger.Logger)
	manager.Register(local)
	manager.StartCleanup(cacheCleanupInterval)

	f.logger.Info("Initialized local record cache",
		"size", config.CacheSize,
		"ttl", config.CacheTTL)

	return local, func() error {
		manager.Stop()
		return nil
	}, nil
}
