package auth

import (
	"context"
	"errors"
	"time"

	"trialgate.org/internal/obs"
)

const (
	defaultMaxLoginAttempts = 5
	defaultLockoutDuration  = 30 * time.Minute

	EventAccountLocked = "account_locked"
)

// LockoutPolicy sets the failed-login threshold and how long a lock lasts.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

func (p LockoutPolicy) normalized() LockoutPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxLoginAttempts
	}
	if p.Duration <= 0 {
		p.Duration = defaultLockoutDuration
	}
	return p
}

// StatusGate checks that an account may log in and applies lock/unlock transitions.
type StatusGate struct {
	store  Store
	policy LockoutPolicy
	opts   options
}

func NewStatusGate(store Store, policy LockoutPolicy, opts ...Option) *StatusGate {
	return &StatusGate{store: store, policy: policy.normalized(), opts: buildOptions(opts)}
}

// Validate returns the account on success. The expired-lock reset and the
// threshold lock are written best-effort; a failed write never changes the
// returned error.
func (g *StatusGate) Validate(ctx context.Context, variant Variant, email string) (*Account, error) {
	acc, err := g.validate(ctx, variant, email)
	obs.GateDecision("account_status", Kind(err))
	return acc, err
}

func (g *StatusGate) validate(ctx context.Context, variant Variant, email string) (*Account, error) {
	if variant != VariantPhysician && variant != VariantPatient {
		return nil, ErrInvalidConfiguration
	}
	accounts := g.store.Accounts(ctx)
	acc, err := accounts.FindByEmail(ctx, variant, email)
	if err != nil {
		return nil, err
	}
	now := g.opts.now()

	if acc.LockedUntil != nil {
		if acc.LockedUntil.After(now) {
			return acc, ErrAccountLocked
		}
		if err := accounts.Unlock(ctx, variant, email); err != nil {
			obs.BestEffortFailure("account_unlock")
			obs.Warn("account unlock failed", map[string]any{"email": email, "variant": variant.String(), "error": err})
		}
		acc.LockedUntil = nil
		acc.FailedLoginAttempts = 0
		if acc.Status == StatusLocked {
			acc.Status = StatusActive
		}
	}

	if acc.FailedLoginAttempts >= g.policy.MaxAttempts {
		until := now.Add(g.policy.Duration)
		if err := accounts.Lock(ctx, variant, email, until); err != nil {
			obs.BestEffortFailure("account_lock")
			obs.Warn("account lock failed", map[string]any{"email": email, "variant": variant.String(), "error": err})
		}
		acc.LockedUntil = &until
		if acc.Status == StatusActive {
			acc.Status = StatusLocked
		}
		g.opts.auditor.Record(ctx, AuditEntry{
			EventType: EventAccountLocked,
			Email:     email,
			Details: map[string]any{
				"reason":          "max_failed_attempts",
				"failed_attempts": acc.FailedLoginAttempts,
				"locked_until":    until.UTC().Format(time.RFC3339),
				"user_type":       variant.String(),
			},
		})
		return acc, ErrAccountLocked
	}

	if acc.Status != StatusActive {
		return acc, &StatusError{Status: acc.Status}
	}
	if !acc.EmailVerified {
		return acc, ErrEmailNotVerified
	}
	return acc, nil
}

// ResolveVariantByEmail probes physicians then patients. Use it only when the
// pool identifier could not supply a variant.
func ResolveVariantByEmail(ctx context.Context, store Store, email string) (Variant, error) {
	accounts := store.Accounts(ctx)
	for _, v := range []Variant{VariantPhysician, VariantPatient} {
		ok, err := accounts.Exists(ctx, v, email)
		if err != nil {
			return VariantUnknown, err
		}
		if ok {
			return v, nil
		}
	}
	return VariantUnknown, ErrAccountNotFound
}

// RecordFailedAttempt increments the failure counter. Errors are logged and
// swallowed. A known variant skips the probe.
func RecordFailedAttempt(ctx context.Context, store Store, variant Variant, email string) {
	if email == "" {
		return
	}
	if variant == VariantUnknown {
		v, err := ResolveVariantByEmail(ctx, store, email)
		if err != nil {
			if !errors.Is(err, ErrAccountNotFound) {
				obs.BestEffortFailure("failed_attempt_probe")
				obs.Warn("failed attempt probe failed", map[string]any{"email": email, "error": err})
			}
			return
		}
		variant = v
	}
	if err := store.Accounts(ctx).IncrementFailedAttempts(ctx, variant, email); err != nil {
		obs.BestEffortFailure("failed_attempt_increment")
		obs.Warn("failed attempt increment failed", map[string]any{"email": email, "variant": variant.String(), "error": err})
	}
}
