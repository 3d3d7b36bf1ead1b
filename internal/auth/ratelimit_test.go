package auth

import (
	"context"
	"testing"
	"time"
)

func TestLimiterBoundaries(t *testing.T) {
	ctx := context.Background()
	limit := Limit{Max: 3, Window: 15 * time.Minute}

	t.Run("exactly N prior", func(t *testing.T) {
		store := NewMemoryStore()
		rates := store.RateLimits(ctx)
		for i := 0; i < 3; i++ {
			_ = rates.Record(ctx, LimitTypeUser, "a@example.org", testNow.Add(-time.Duration(i+1)*time.Minute))
		}
		d := NewLimiter(store, fixedClock()).Check(ctx, LimitTypeUser, "a@example.org", limit)
		if !d.Exceeded || d.Remaining != 0 {
			t.Fatalf("expected exceeded with 0 remaining, got %+v", d)
		}
	})

	t.Run("N-1 prior", func(t *testing.T) {
		store := NewMemoryStore()
		rates := store.RateLimits(ctx)
		for i := 0; i < 2; i++ {
			_ = rates.Record(ctx, LimitTypeUser, "a@example.org", testNow.Add(-time.Minute))
		}
		d := NewLimiter(store, fixedClock()).Check(ctx, LimitTypeUser, "a@example.org", limit)
		if d.Exceeded || d.Remaining != 1 {
			t.Fatalf("expected allowed with 1 remaining, got %+v", d)
		}
	})
}

func TestLimiterIgnoresRowsOutsideWindowAndOtherKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rates := store.RateLimits(ctx)
	_ = rates.Record(ctx, LimitTypeIP, "10.0.0.1", testNow.Add(-2*time.Hour))
	_ = rates.Record(ctx, LimitTypeIP, "10.0.0.1", testNow.Add(-time.Hour))
	_ = rates.Record(ctx, LimitTypeUser, "10.0.0.1", testNow.Add(-time.Minute))
	_ = rates.Record(ctx, LimitTypeIP, "10.0.0.2", testNow.Add(-time.Minute))

	d := NewLimiter(store, fixedClock()).Check(ctx, LimitTypeIP, "10.0.0.1", Limit{Max: 1, Window: time.Hour})
	if d.Exceeded || d.Remaining != 1 {
		t.Fatalf("stale or foreign rows counted: %+v", d)
	}
}

func TestLimiterRecordsEveryRequest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	lim := NewLimiter(store, fixedClock())
	limit := Limit{Max: 2, Window: time.Hour}

	var last Decision
	for i := 0; i < 4; i++ {
		last = lim.Check(ctx, LimitTypeAuth, "a@example.org:10.0.0.1", limit)
	}
	if !last.Exceeded {
		t.Fatalf("expected exceeded after 4 checks, got %+v", last)
	}
	n, _ := store.RateLimits(ctx).Count(ctx, LimitTypeAuth, "a@example.org:10.0.0.1", testNow.Add(-time.Hour))
	if n != 4 {
		t.Fatalf("expected 4 recorded rows, got %d", n)
	}
}

func TestLimiterFailsOpen(t *testing.T) {
	lim := NewLimiter(brokenRates{NewMemoryStore()}, fixedClock())
	d := lim.Check(context.Background(), LimitTypeIP, "10.0.0.1", Limit{Max: 1, Window: time.Hour})
	if d.Exceeded || d.Remaining != 1 {
		t.Fatalf("expected fail-open decision, got %+v", d)
	}
}

func TestEnforceReturnsScopedError(t *testing.T) {
	lim := NewLimiter(NewMemoryStore(), fixedClock())
	ctx := context.Background()
	limit := Limit{Max: 1, Window: time.Hour}
	if _, err := lim.Enforce(ctx, ScopeIP, LimitTypePreAuthIP, "10.0.0.1", limit); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}
	_, err := lim.Enforce(ctx, ScopeIP, LimitTypePreAuthIP, "10.0.0.1", limit)
	rl, ok := err.(*RateLimitError)
	if !ok || rl.Scope != ScopeIP || Kind(err) != "rate_limit_exceeded" {
		t.Fatalf("expected ip RateLimitError, got %v", err)
	}
}
