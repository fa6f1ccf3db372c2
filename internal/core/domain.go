package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Food          Category = "Food"
	Travel        Category = "Travel"
	Utilities     Category = "Utilities"
	Entertainment Category = "Entertainment"
	Other         Category = "Other"
)

// DateLayout is the wire and storage format of an expense date.
const DateLayout = "2006-01-02"

type (
	Category string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Expense is a stored ledger record. Records are immutable once created.
	Expense struct {
		ID             int64
		Amount         Money
		Category       Category
		Description    string
		Date           Date
		CreatedAt      time.Time
		IdempotencyKey string
		SyncedAt       *time.Time // set once the sheets mirror has the row
	}

	// CreateIntent is a validated create request, ready for the store.
	CreateIntent struct {
		Amount         Money
		Category       Category
		Description    string
		Date           Date
		IdempotencyKey string
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
)

// Categories returns the known category set in display order.
func Categories() []Category {
	return []Category{Food, Travel, Utilities, Entertainment, Other}
}

// IsKnown reports whether c belongs to the known category set.
func (c Category) IsKnown() bool {
	for _, k := range Categories() {
		if c == k {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD date. Only the format is checked.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (i CreateIntent) Validate() error {
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(string(i.Category)) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(i.Description) == "" {
		return ErrEmptyDescription
	}
	if err := i.Date.Validate(); err != nil {
		return err
	}
	if i.IdempotencyKey == "" {
		return ErrMissingIdempotencyKey
	}
	return nil
}

// SamePayload reports whether e was created from an intent carrying the
// same amount, category, description and date as i.
func (e Expense) SamePayload(i CreateIntent) bool {
	return e.Amount == i.Amount &&
		e.Category == i.Category &&
		e.Description == i.Description &&
		e.Date.Equal(i.Date.Time)
}
