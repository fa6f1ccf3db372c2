package memory

import (
	"context"
	"testing"

	"walletwise/internal/core"
)

func TestStoreAppendAndFind(t *testing.T) {
	s := New()
	ctx := context.Background()

	ref, err := s.Append(ctx, core.Expense{ID: 1, IdempotencyKey: "k1", Amount: core.Money{Cents: 123}})
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}

	ref, found, err := s.FindRow(ctx, "k1")
	if err != nil || !found || ref != "mem:1" {
		t.Fatalf("FindRow(k1) = %q, %v, %v", ref, found, err)
	}
	if _, found, _ := s.FindRow(ctx, "nope"); found {
		t.Fatal("FindRow should not find unknown key")
	}
	if len(s.Rows()) != 1 {
		t.Fatalf("expected 1 row, got %d", len(s.Rows()))
	}
}

func TestStoreAppendRejectsUnstored(t *testing.T) {
	if _, err := New().Append(context.Background(), core.Expense{}); err == nil {
		t.Fatal("expected error for expense without id")
	}
}
