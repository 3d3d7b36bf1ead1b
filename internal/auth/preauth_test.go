package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

const patientPool = "eu-west-1_patient-portal"

func newPreAuth(store Store, audit Auditor) *PreAuthenticator {
	opts := []Option{fixedClock(), WithAuditor(audit)}
	return NewPreAuthenticator(
		store,
		NewStatusGate(store, LockoutPolicy{MaxAttempts: 5, Duration: 30 * time.Minute}, opts...),
		NewLimiter(store, opts...),
		NewMFAGate(store, opts...),
		DefaultRatePolicy(),
		opts...,
	)
}

func TestPreAuthenticationSucceedsNearThreshold(t *testing.T) {
	store := NewMemoryStore()
	acc := activePatient("p@example.org")
	acc.FailedLoginAttempts = 4
	store.PutAccount(acc)
	audit := &captureAuditor{}

	err := newPreAuth(store, audit).Validate(context.Background(), LoginAttempt{
		PoolID: patientPool, Email: "p@example.org", SourceIP: "10.0.0.1", UserAgent: "ua",
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	ev := audit.events()
	if len(ev) != 1 || ev[0] != EventPreAuthentication {
		t.Fatalf("expected one pre_authentication entry, got %v", ev)
	}
	stored, _ := store.Account(VariantPatient, "p@example.org")
	if stored.FailedLoginAttempts != 4 {
		t.Fatalf("success must not touch the counter, got %d", stored.FailedLoginAttempts)
	}
}

func TestPreAuthenticationFailureAuditsAndCounts(t *testing.T) {
	store := NewMemoryStore()
	acc := activePatient("p@example.org")
	acc.MFAEnabled = false
	store.PutAccount(acc)
	audit := &captureAuditor{}

	err := newPreAuth(store, audit).Validate(context.Background(), LoginAttempt{
		PoolID: patientPool, Email: "p@example.org", SourceIP: "10.0.0.9", UserAgent: "curl",
	})
	if !errors.Is(err, ErrMFANotConfigured) {
		t.Fatalf("expected ErrMFANotConfigured, got %v", err)
	}
	if len(audit.entries) != 1 {
		t.Fatalf("expected one audit entry, got %v", audit.events())
	}
	e := audit.entries[0]
	if e.EventType != EventPreAuthenticationFailed || e.SourceIP != "10.0.0.9" || e.UserAgent != "curl" {
		t.Fatalf("unexpected failure entry: %+v", e)
	}
	if e.Details["error"] != ErrMFANotConfigured.Error() {
		t.Fatalf("error message not recorded: %v", e.Details)
	}
	stored, _ := store.Account(VariantPatient, "p@example.org")
	if stored.FailedLoginAttempts != 1 {
		t.Fatalf("expected counter bumped to 1, got %d", stored.FailedLoginAttempts)
	}
}

func TestPreAuthenticationEmailLimit(t *testing.T) {
	store := NewMemoryStore()
	store.PutAccount(activePatient("p@example.org"))
	p := newPreAuth(store, &captureAuditor{})
	ctx := context.Background()

	var err error
	for i := 0; i < 4; i++ {
		err = p.Validate(ctx, LoginAttempt{PoolID: patientPool, Email: "p@example.org", SourceIP: "10.0.0.1"})
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.Scope != ScopeEmail {
		t.Fatalf("expected email rate limit on 4th attempt, got %v", err)
	}
}

func TestPreAuthenticationIPLimitRunsBeforeMFA(t *testing.T) {
	store := NewMemoryStore()
	acc := activePatient("p@example.org")
	acc.MFAEnabled = false
	store.PutAccount(acc)
	ctx := context.Background()
	rates := store.RateLimits(ctx)
	for i := 0; i < 20; i++ {
		_ = rates.Record(ctx, LimitTypePreAuthIP, "10.0.0.1", testNow.Add(-time.Minute))
	}

	err := newPreAuth(store, &captureAuditor{}).Validate(ctx, LoginAttempt{PoolID: patientPool, Email: "p@example.org", SourceIP: "10.0.0.1"})
	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.Scope != ScopeIP {
		t.Fatalf("expected ip rate limit, got %v", err)
	}
}

func TestPreAuthenticationStatusShortCircuits(t *testing.T) {
	store := NewMemoryStore()
	acc := activePatient("p@example.org")
	acc.Status = StatusSuspended
	store.PutAccount(acc)
	ctx := context.Background()

	err := newPreAuth(store, &captureAuditor{}).Validate(ctx, LoginAttempt{PoolID: patientPool, Email: "p@example.org", SourceIP: "10.0.0.1"})
	if !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive, got %v", err)
	}
	n, _ := store.RateLimits(ctx).Count(ctx, LimitTypePreAuthIP, "10.0.0.1", testNow.Add(-time.Hour))
	if n != 0 {
		t.Fatalf("rate limiter should not run after status failure, got %d rows", n)
	}
}

func TestPreAuthenticationUnknownPool(t *testing.T) {
	store := NewMemoryStore()
	store.PutAccount(activePatient("p@example.org"))
	audit := &captureAuditor{}

	err := newPreAuth(store, audit).Validate(context.Background(), LoginAttempt{PoolID: "admins", Email: "p@example.org"})
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
	stored, _ := store.Account(VariantPatient, "p@example.org")
	if stored.FailedLoginAttempts != 1 {
		t.Fatalf("expected probed increment, got %d", stored.FailedLoginAttempts)
	}
	if ev := audit.events(); len(ev) != 1 || ev[0] != EventPreAuthenticationFailed {
		t.Fatalf("unexpected audit events %v", ev)
	}
}
