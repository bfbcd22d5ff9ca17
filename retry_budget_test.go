package tameng

import (
	"testing"
	"time"
)

func TestRetryBudgetAllows(t *testing.T) {
	b := NewRetryBudget(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("Expected retry %d allowed", i+1)
		}
	}
	if b.Allow() {
		t.Error("Expected fourth retry denied")
	}
}

func TestRetryBudgetRemaining(t *testing.T) {
	b := NewRetryBudget(2, time.Minute)

	if got := b.Remaining(); got != 2 {
		t.Errorf("Expected 2 remaining, got %d", got)
	}
	b.Allow()
	if got := b.Remaining(); got != 1 {
		t.Errorf("Expected 1 remaining, got %d", got)
	}
	b.Allow()
	b.Allow()
	if got := b.Remaining(); got != 0 {
		t.Errorf("Expected 0 remaining, got %d", got)
	}
}

func TestRetryBudgetWindowReset(t *testing.T) {
	b := NewRetryBudget(1, 30*time.Millisecond)

	if !b.Allow() {
		t.Fatal("Expected first retry allowed")
	}
	if b.Allow() {
		t.Fatal("Expected second retry denied")
	}

	time.Sleep(50 * time.Millisecond)

	if !b.Allow() {
		t.Error("Expected retry allowed after window reset")
	}
}
