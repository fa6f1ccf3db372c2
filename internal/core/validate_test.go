package core

import (
	"errors"
	"strings"
	"testing"
)

func validRequest() CreateRequest {
	return CreateRequest{
		Amount:         "12.3",
		Category:       "Food",
		Description:    "lunch",
		Date:           "2024-01-01",
		IdempotencyKey: "key-1",
	}
}

func TestGateValidate_Normalizes(t *testing.T) {
	req := validRequest()
	req.Category = " Food "
	req.Description = "  lunch "
	req.IdempotencyKey = " key-1 "

	intent, err := ValidateCreate(req)
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if intent.Amount.Cents != 1230 {
		t.Fatalf("amount = %d, want 1230", intent.Amount.Cents)
	}
	if intent.Category != Food || intent.Description != "lunch" || intent.IdempotencyKey != "key-1" {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if intent.Date.String() != "2024-01-01" {
		t.Fatalf("date = %s", intent.Date)
	}
}

func TestGateValidate_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*CreateRequest)
		field string
		want  error
	}{
		{"missing amount", func(r *CreateRequest) { r.Amount = "" }, "amount", ErrMissingAmount},
		{"zero amount", func(r *CreateRequest) { r.Amount = "0" }, "amount", ErrInvalidAmount},
		{"negative amount", func(r *CreateRequest) { r.Amount = "-5" }, "amount", ErrInvalidAmount},
		{"unparseable amount", func(r *CreateRequest) { r.Amount = "ten" }, "amount", ErrInvalidAmount},
		{"missing category", func(r *CreateRequest) { r.Category = "  " }, "category", ErrMissingCategory},
		{"missing description", func(r *CreateRequest) { r.Description = "" }, "description", ErrMissingDescription},
		{"missing date", func(r *CreateRequest) { r.Date = "" }, "date", ErrMissingDate},
		{"malformed date", func(r *CreateRequest) { r.Date = "yesterday" }, "date", ErrInvalidDate},
		{"missing key", func(r *CreateRequest) { r.IdempotencyKey = "" }, "idempotency_key", ErrMissingIdempotencyKey},
		{"long key", func(r *CreateRequest) { r.IdempotencyKey = strings.Repeat("k", MaxIdempotencyKeyLen+1) }, "idempotency_key", ErrIdempotencyKeyTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.edit(&req)

			_, err := ValidateCreate(req)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("expected field %q, got %v", tt.field, err)
			}
		})
	}
}

func TestGateValidate_Categories(t *testing.T) {
	req := validRequest()
	req.Category = "Groceries"

	if _, err := (Gate{}).Validate(req); err != nil {
		t.Fatalf("permissive gate should accept unknown category, got %v", err)
	}
	if _, err := (Gate{StrictCategories: true}).Validate(req); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("strict gate should reject unknown category, got %v", err)
	}
}
