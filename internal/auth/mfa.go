package auth

import (
	"context"

	"trialgate.org/internal/obs"
)

// MFAGate requires configured MFA, except for physicians inside an emergency
// access window.
type MFAGate struct {
	store Store
	opts  options
}

func NewMFAGate(store Store, opts ...Option) *MFAGate {
	return &MFAGate{store: store, opts: buildOptions(opts)}
}

// Validate loads the account and applies the MFA policy.
func (g *MFAGate) Validate(ctx context.Context, variant Variant, email string) error {
	acc, err := g.store.Accounts(ctx).FindByEmail(ctx, variant, email)
	if err != nil {
		obs.GateDecision("mfa", Kind(err))
		return err
	}
	err = g.Evaluate(acc)
	obs.GateDecision("mfa", Kind(err))
	return err
}

// Evaluate applies the policy to an already loaded account.
func (g *MFAGate) Evaluate(acc *Account) error {
	if acc.Variant == VariantPhysician && acc.EmergencyAccessUntil != nil && acc.EmergencyAccessUntil.After(g.opts.now()) {
		return nil
	}
	if !acc.MFAEnabled || !acc.HasMFAMethods() {
		return ErrMFANotConfigured
	}
	return nil
}
