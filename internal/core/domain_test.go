package core

import (
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-01")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.String() != "2024-03-01" {
		t.Fatalf("round trip = %s", d)
	}
	for _, bad := range []string{"", "2024-3-1", "01/03/2024", "2024-02-30", "2024-03-01T10:00:00Z"} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%q expected ErrInvalidDate, got %v", bad, err)
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestCategoryIsKnown(t *testing.T) {
	for _, c := range Categories() {
		if !c.IsKnown() {
			t.Fatalf("%s should be known", c)
		}
	}
	if Category("food").IsKnown() {
		t.Fatalf("category match must be case-sensitive")
	}
}

func TestCreateIntentValidate(t *testing.T) {
	good := CreateIntent{
		Amount:         Money{Cents: 100},
		Category:       Food,
		Description:    "ok",
		Date:           NewDate(2025, 1, 1),
		IdempotencyKey: "k",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []CreateIntent{
		{Amount: Money{Cents: 0}, Category: Food, Description: "a", Date: NewDate(2025, 1, 1), IdempotencyKey: "k"},
		{Amount: Money{Cents: 1}, Category: "", Description: "a", Date: NewDate(2025, 1, 1), IdempotencyKey: "k"},
		{Amount: Money{Cents: 1}, Category: Food, Description: " ", Date: NewDate(2025, 1, 1), IdempotencyKey: "k"},
		{Amount: Money{Cents: 1}, Category: Food, Description: "a", IdempotencyKey: "k"}, // zero date
		{Amount: Money{Cents: 1}, Category: Food, Description: "a", Date: NewDate(2025, 1, 1)},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestExpenseSamePayload(t *testing.T) {
	intent := CreateIntent{
		Amount:         Money{Cents: 1230},
		Category:       Food,
		Description:    "lunch",
		Date:           NewDate(2024, 1, 1),
		IdempotencyKey: "k",
	}
	e := Expense{ID: 1, Amount: intent.Amount, Category: intent.Category, Description: intent.Description, Date: intent.Date, IdempotencyKey: "k"}
	if !e.SamePayload(intent) {
		t.Fatalf("expected same payload")
	}
	intent.Amount = Money{Cents: 1231}
	if e.SamePayload(intent) {
		t.Fatalf("expected payload mismatch")
	}
}
