package core

import (
	"errors"
	"fmt"
	"strings"
)

// MaxIdempotencyKeyLen bounds the client token.
const MaxIdempotencyKeyLen = 255

// ErrInvalidInput matches every validation failure returned by the gate.
var ErrInvalidInput = errors.New("invalid input")

var (
	ErrMissingAmount         = errors.New("amount is required")
	ErrMissingCategory       = errors.New("category is required")
	ErrUnknownCategory       = errors.New("unknown category")
	ErrMissingDescription    = errors.New("description is required")
	ErrMissingDate           = errors.New("date is required")
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
	ErrIdempotencyKeyTooLong = errors.New("idempotency key too long")
)

// CreateRequest is a raw create payload as received from a client. Amount
// keeps the literal text of the number the client sent.
type CreateRequest struct {
	Amount         string
	Category       string
	Description    string
	Date           string
	IdempotencyKey string
}

// ValidationError describes a rejected field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{e.Err, ErrInvalidInput}
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// Gate turns raw create requests into create intents. It performs no I/O.
type Gate struct {
	// StrictCategories rejects categories outside the known set.
	StrictCategories bool
}

// ValidateCreate validates req with the permissive gate.
func ValidateCreate(req CreateRequest) (CreateIntent, error) {
	return Gate{}.Validate(req)
}

// Validate checks required fields and normalizes the amount to cents.
func (g Gate) Validate(req CreateRequest) (CreateIntent, error) {
	rawAmount := strings.TrimSpace(req.Amount)
	if rawAmount == "" {
		return CreateIntent{}, invalid("amount", ErrMissingAmount)
	}
	amount, err := ParseMoney(rawAmount)
	if err != nil {
		return CreateIntent{}, invalid("amount", err)
	}

	category := Category(strings.TrimSpace(req.Category))
	if category == "" {
		return CreateIntent{}, invalid("category", ErrMissingCategory)
	}
	if g.StrictCategories && !category.IsKnown() {
		return CreateIntent{}, invalid("category", ErrUnknownCategory)
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		return CreateIntent{}, invalid("description", ErrMissingDescription)
	}

	rawDate := strings.TrimSpace(req.Date)
	if rawDate == "" {
		return CreateIntent{}, invalid("date", ErrMissingDate)
	}
	date, err := ParseDate(rawDate)
	if err != nil {
		return CreateIntent{}, invalid("date", err)
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return CreateIntent{}, invalid("idempotency_key", ErrMissingIdempotencyKey)
	}
	if len(key) > MaxIdempotencyKeyLen {
		return CreateIntent{}, invalid("idempotency_key", ErrIdempotencyKeyTooLong)
	}

	return CreateIntent{
		Amount:         amount,
		Category:       category,
		Description:    description,
		Date:           date,
		IdempotencyKey: key,
	}, nil
}
