package store

import (
	"context"
	"math"
	"testing"
)

func TestLedgerDefaultsToZero(t *testing.T) {
	l := NewLedger(testDB(t))
	b, err := l.Boost(context.Background(), "unknown")
	if err != nil || b != 0 {
		t.Errorf("Boost = %v, %v; want 0, nil", b, err)
	}
}

func TestLedgerIncrementAccumulates(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(testDB(t))

	for i := 0; i < 4; i++ {
		if err := l.Increment(ctx, "a", 0.05); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	b, _ := l.Boost(ctx, "a")
	if math.Abs(b-0.2) > 1e-9 {
		t.Errorf("Boost = %v, want 0.2", b)
	}
	if err := l.Increment(ctx, "a", -0.1); err == nil {
		t.Error("negative increment should fail")
	}
}

func TestLedgerReinforceOncePerToken(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(testDB(t))

	applied, err := l.Reinforce(ctx, "tok-1", []string{"a", "b", "a"}, 0.05)
	if err != nil || !applied {
		t.Fatalf("Reinforce = %v, %v", applied, err)
	}
	applied, err = l.Reinforce(ctx, "tok-1", []string{"a", "b"}, 0.05)
	if err != nil || applied {
		t.Fatalf("replay = %v, %v; want false, nil", applied, err)
	}
	l.Reinforce(ctx, "tok-2", []string{"a"}, 0.05)

	a, _ := l.Boost(ctx, "a")
	b, _ := l.Boost(ctx, "b")
	if math.Abs(a-0.1) > 1e-9 || math.Abs(b-0.05) > 1e-9 {
		t.Errorf("boosts a=%v b=%v, want 0.1 0.05", a, b)
	}
}

func TestLedgerReinforceRejectsEmptyToken(t *testing.T) {
	l := NewLedger(testDB(t))
	if _, err := l.Reinforce(context.Background(), "", []string{"a"}, 0.05); err == nil {
		t.Error("expected error for empty token")
	}
}
