package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"walletwise/internal/core"
	"walletwise/internal/log"
	"walletwise/internal/storage"
)

// EventPublisher announces freshly created records.
type EventPublisher interface {
	PublishExpenseCreated(ctx context.Context, e core.Expense) error
}

// ExpenseService composes the validation gate, the resolver and the query engine.
type ExpenseService struct {
	gate      core.Gate
	store     storage.Store
	resolver  *Resolver
	query     *QueryEngine
	publisher EventPublisher // optional
	closers   []io.Closer
}

// ServiceOption configures an ExpenseService.
type ServiceOption func(*ExpenseService)

// WithPublisher publishes an event for each created record.
func WithPublisher(p EventPublisher) ServiceOption {
	return func(s *ExpenseService) { s.publisher = p }
}

// WithStrictCategories rejects categories outside the known set.
func WithStrictCategories(strict bool) ServiceOption {
	return func(s *ExpenseService) { s.gate.StrictCategories = strict }
}

// WithCloser registers a resource to release in Close, after the store.
func WithCloser(c io.Closer) ServiceOption {
	return func(s *ExpenseService) { s.closers = append(s.closers, c) }
}

func NewExpenseService(store storage.Store, resolver *Resolver, opts ...ServiceOption) *ExpenseService {
	s := &ExpenseService{
		store:    store,
		resolver: resolver,
		query:    NewQueryEngine(store),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateExpense validates req and resolves it against the store. Invalid
// input never reaches the store.
func (s *ExpenseService) CreateExpense(ctx context.Context, req core.CreateRequest) (core.Expense, Outcome, error) {
	logger := log.FromContext(ctx)

	intent, err := s.gate.Validate(req)
	if err != nil {
		logger.InfoContext(ctx, "Create request rejected",
			log.FieldOperation, log.OpValidate,
			log.FieldError, err)
		return core.Expense{}, 0, err
	}

	e, outcome, err := s.resolver.Resolve(ctx, intent)
	if err != nil {
		return core.Expense{}, 0, err
	}

	log.NewStructuredLogger(logger).LogExpenseResolved(ctx, e.ID, e.IdempotencyKey, e.Amount.Cents, string(e.Category), outcome.String())

	if outcome == Created {
		s.publishCreated(ctx, e)
	}
	return e, outcome, nil
}

// ListExpenses parses untrusted parameters and runs the list query.
func (s *ExpenseService) ListExpenses(ctx context.Context, values url.Values) ([]core.Expense, error) {
	return s.query.List(ctx, ParseListQuery(values))
}

// Categories returns the known category set.
func (s *ExpenseService) Categories() []core.Category {
	return core.Categories()
}

// Ping reports whether the store is reachable.
func (s *ExpenseService) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStorage, err)
	}
	return nil
}

// publishCreated never fails the request: the record is already durable and
// the sync processor picks up anything whose event was lost.
func (s *ExpenseService) publishCreated(ctx context.Context, e core.Expense) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseCreated(ctx, e); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Failed to publish expense created event",
			log.FieldExpenseID, e.ID,
			log.FieldOperation, log.OpPublish,
			log.FieldError, err)
	}
}

// Close closes the store and every registered closer.
func (s *ExpenseService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close expense service: %w", errors.Join(errs...))
	}
	return nil
}
