package auth

import (
	"context"
	"errors"

	"trialgate.org/internal/obs"
)

const (
	EventPreAuthentication       = "pre_authentication"
	EventPreAuthenticationFailed = "pre_authentication_failed"
)

// LoginAttempt is the input to pre-authentication.
type LoginAttempt struct {
	PoolID    string
	Email     string
	SourceIP  string
	UserAgent string
}

// PreAuthenticator runs status, IP limit, email limit and MFA in that order
// and stops at the first failure.
type PreAuthenticator struct {
	store   Store
	status  *StatusGate
	limiter *Limiter
	mfa     *MFAGate
	policy  RatePolicy
	opts    options
}

func NewPreAuthenticator(store Store, status *StatusGate, limiter *Limiter, mfa *MFAGate, policy RatePolicy, opts ...Option) *PreAuthenticator {
	return &PreAuthenticator{
		store:   store,
		status:  status,
		limiter: limiter,
		mfa:     mfa,
		policy:  policy,
		opts:    buildOptions(opts),
	}
}

// Validate returns nil when the login may proceed. On failure the original
// error is returned after the failure is audited and the account's failure
// counter is bumped.
func (p *PreAuthenticator) Validate(ctx context.Context, attempt LoginAttempt) error {
	variant, err := p.run(ctx, attempt)
	if err != nil {
		p.opts.auditor.Record(ctx, AuditEntry{
			EventType: EventPreAuthenticationFailed,
			Email:     attempt.Email,
			Details: map[string]any{
				"error":     err.Error(),
				"kind":      Kind(err),
				"user_type": variant.String(),
			},
			SourceIP:  attempt.SourceIP,
			UserAgent: attempt.UserAgent,
		})
		// The counter belongs to a real account; a missing one has nothing to bump.
		if !errors.Is(err, ErrAccountNotFound) {
			RecordFailedAttempt(ctx, p.store, variant, attempt.Email)
		}
		obs.GateDecision("pre_authentication", Kind(err))
		return err
	}

	p.opts.auditor.Record(ctx, AuditEntry{
		EventType: EventPreAuthentication,
		Email:     attempt.Email,
		Details: map[string]any{
			"success":   true,
			"user_type": variant.String(),
		},
		SourceIP:  attempt.SourceIP,
		UserAgent: attempt.UserAgent,
	})
	obs.GateDecision("pre_authentication", "pass")
	return nil
}

func (p *PreAuthenticator) run(ctx context.Context, attempt LoginAttempt) (Variant, error) {
	variant, err := ResolveVariant(attempt.PoolID)
	if err != nil {
		return VariantUnknown, err
	}
	if attempt.Email == "" {
		return variant, ErrAccountNotFound
	}
	if _, err := p.status.Validate(ctx, variant, attempt.Email); err != nil {
		return variant, err
	}
	if attempt.SourceIP != "" {
		if _, err := p.limiter.Enforce(ctx, ScopeIP, LimitTypePreAuthIP, attempt.SourceIP, p.policy.PreAuthIP); err != nil {
			return variant, err
		}
	}
	if _, err := p.limiter.Enforce(ctx, ScopeEmail, LimitTypePreAuthEmail, attempt.Email, p.policy.PreAuthEmail); err != nil {
		return variant, err
	}
	if err := p.mfa.Validate(ctx, variant, attempt.Email); err != nil {
		return variant, err
	}
	return variant, nil
}
