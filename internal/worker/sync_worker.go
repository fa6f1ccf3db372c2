package worker

import (
	"context"
	"errors"
	"fmt"

	"walletwise/internal/amqp"
	"walletwise/internal/core"
	"walletwise/internal/log"
	"walletwise/internal/sheets"
	"walletwise/internal/storage"
)

// SyncWorker mirrors stored expenses to Google Sheets. The store stays the
// source of truth; a row is written at most once per idempotency key.
type SyncWorker struct {
	store  storage.SyncStore
	mirror sheets.Mirror
}

func NewSyncWorker(store storage.SyncStore, mirror sheets.Mirror) *SyncWorker {
	return &SyncWorker{store: store, mirror: mirror}
}

// HandleCreated processes one expense created message. A message for a
// record that no longer exists is dropped.
func (w *SyncWorker) HandleCreated(ctx context.Context, msg *amqp.ExpenseCreatedMessage) error {
	logger := log.FromContext(ctx)
	logger.DebugContext(ctx, "Processing created message",
		log.FieldExpenseID, msg.ID,
		log.FieldIdempotencyKey, msg.IdempotencyKey)

	e, err := w.store.GetExpense(ctx, msg.ID)
	if errors.Is(err, storage.ErrNotFound) {
		logger.WarnContext(ctx, "Created message refers to unknown expense, dropping",
			log.FieldExpenseID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}

	return w.MirrorExpense(ctx, e)
}

// MirrorExpense appends e unless it is already synced or already present in
// the sheet, then marks it synced.
func (w *SyncWorker) MirrorExpense(ctx context.Context, e core.Expense) error {
	logger := log.FromContext(ctx)

	if e.SyncedAt != nil {
		return nil
	}

	ref, found, err := w.mirror.FindRow(ctx, e.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("look up sheet row: %w", err)
	}
	if found {
		// appended earlier but the synced mark was lost
		logger.InfoContext(ctx, "Expense already present in sheet",
			log.FieldExpenseID, e.ID,
			log.FieldSheetsRef, ref)
	} else {
		ref, err = w.mirror.Append(ctx, e)
		if err != nil {
			return fmt.Errorf("append to sheets: %w", err)
		}
	}

	if err := w.store.MarkSynced(ctx, e.ID); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}

	logger.InfoContext(ctx, "Successfully synced expense",
		log.FieldExpenseID, e.ID,
		log.FieldSheetsRef, ref,
		log.FieldAmountCents, e.Amount.Cents)

	return nil
}
