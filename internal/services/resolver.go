package services

import (
	"context"
	"errors"
	"fmt"

	"walletwise/internal/cache"
	"walletwise/internal/core"
	"walletwise/internal/log"
	"walletwise/internal/storage"
)

// ErrStorage marks a failure of the ledger store. It is the only error kind
// the create and list paths return besides core.ErrInvalidInput.
var ErrStorage = errors.New("storage failure")

// Outcome tells whether Resolve created a record or found an existing one.
type Outcome int

const (
	Created Outcome = iota + 1
	AlreadyExisted
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExisted:
		return "already-existed"
	default:
		return "unknown"
	}
}

// Resolver performs the idempotent create-or-return. It keeps no state of
// its own: the store's uniqueness constraint on the idempotency key decides
// which caller wins, so any number of resolvers may run in parallel, in one
// process or many.
type Resolver struct {
	store storage.Store
	cache cache.RecordCache // optional
}

func NewResolver(store storage.Store, recordCache cache.RecordCache) *Resolver {
	return &Resolver{store: store, cache: recordCache}
}

// Resolve returns the record for intent.IdempotencyKey, creating it when no
// record carries that key yet.
func (r *Resolver) Resolve(ctx context.Context, intent core.CreateIntent) (core.Expense, Outcome, error) {
	logger := log.FromContext(ctx)
	key := intent.IdempotencyKey

	if e, ok := r.cached(ctx, key); ok {
		r.checkPayload(ctx, e, intent)
		return e, AlreadyExisted, nil
	}

	existing, err := r.store.FindByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		r.remember(ctx, existing)
		r.checkPayload(ctx, existing, intent)
		return existing, AlreadyExisted, nil
	case !errors.Is(err, storage.ErrNotFound):
		return core.Expense{}, 0, fmt.Errorf("%w: lookup idempotency key: %w", ErrStorage, err)
	}

	created, err := r.store.Insert(ctx, intent)
	if err == nil {
		r.remember(ctx, created)
		return created, Created, nil
	}
	if !errors.Is(err, storage.ErrDuplicateIdempotencyKey) {
		return core.Expense{}, 0, fmt.Errorf("%w: insert expense: %w", ErrStorage, err)
	}

	// A concurrent caller inserted the same key between our lookup and insert.
	logger.DebugContext(ctx, "Idempotency key conflict, reading winning record",
		log.FieldIdempotencyKey, key)

	winner, err := r.store.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return core.Expense{}, 0, fmt.Errorf("%w: re-read after key conflict: %w", ErrStorage, err)
	}
	r.remember(ctx, winner)
	r.checkPayload(ctx, winner, intent)
	return winner, AlreadyExisted, nil
}

func (r *Resolver) cached(ctx context.Context, key string) (core.Expense, bool) {
	if r.cache == nil {
		return core.Expense{}, false
	}
	e, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Record cache lookup failed",
			log.FieldIdempotencyKey, key, log.FieldError, err)
		return core.Expense{}, false
	}
	return e, ok
}

func (r *Resolver) remember(ctx context.Context, e core.Expense) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, e.IdempotencyKey, e); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Record cache store failed",
			log.FieldIdempotencyKey, e.IdempotencyKey, log.FieldError, err)
	}
}

// checkPayload logs when a key is replayed with different content. The
// stored record is still returned unchanged.
func (r *Resolver) checkPayload(ctx context.Context, e core.Expense, intent core.CreateIntent) {
	if e.SamePayload(intent) {
		return
	}
	log.FromContext(ctx).WarnContext(ctx, "Idempotency key reused with different payload",
		log.FieldIdempotencyKey, intent.IdempotencyKey,
		log.FieldExpenseID, e.ID)
}
