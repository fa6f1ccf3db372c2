package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"walletwise/internal/core"
	"walletwise/internal/log"
	"walletwise/internal/storage"
)

// ExpenseMirror copies one stored record to the external mirror and marks
// it synced.
type ExpenseMirror interface {
	MirrorExpense(ctx context.Context, e core.Expense) error
}

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for unsynced records (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of records to mirror per poll cycle (default: 10)
	BatchSize int
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    10,
	}
}

// SyncProcessor mirrors records whose created event was lost. It polls the
// store for rows with no synced_at and hands each to the mirror.
type SyncProcessor struct {
	store  storage.SyncStore
	mirror ExpenseMirror
	config SyncProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(store storage.SyncStore, mirror ExpenseMirror, config SyncProcessorConfig) *SyncProcessor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultSyncProcessorConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultSyncProcessorConfig().BatchSize
	}
	return &SyncProcessor{
		store:  store,
		mirror: mirror,
		config: config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	log.FromContext(ctx).InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		log.FromContext(ctx).InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		log.FromContext(ctx).WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch mirrors up to BatchSize unsynced records and returns how many
// succeeded. Failures are logged and retried on the next poll.
func (p *SyncProcessor) ProcessBatch(ctx context.Context) int {
	logger := log.FromContext(ctx)

	pending, err := p.store.PendingSync(ctx, p.config.BatchSize)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load pending sync records",
			log.FieldOperation, log.OpSync,
			log.FieldError, err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	logger.DebugContext(ctx, "Processing sync batch", log.FieldCount, len(pending))

	synced := 0
	for _, e := range pending {
		select {
		case <-p.stopCh:
			return synced
		case <-ctx.Done():
			return synced
		default:
		}

		if err := p.mirror.MirrorExpense(ctx, e); err != nil {
			logger.WarnContext(ctx, "Sync processing failed",
				log.FieldExpenseID, e.ID,
				log.FieldOperation, log.OpSync,
				log.FieldError, err)
			continue
		}
		synced++
	}
	return synced
}
