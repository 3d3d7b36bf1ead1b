package auth

import "trialgate.org/internal/config"

// Core wires every gate from one Config and Store.
type Core struct {
	Store    Store
	Policy   RatePolicy
	Status   *StatusGate
	Limiter  *Limiter
	MFA      *MFAGate
	PreAuth  *PreAuthenticator
	Signup   *SignupValidator
	Tokens   *TokenValidator
	Issuer   *TokenIssuer
	Sessions *SessionGuard
}

// NewCore builds the gates. opts apply to every gate.
func NewCore(store Store, cfg *config.Config, opts ...Option) (*Core, error) {
	tokens, err := NewTokenValidator(store, cfg.AuthSecret, opts...)
	if err != nil {
		return nil, err
	}
	issuer, err := NewTokenIssuer(cfg.AuthSecret, cfg.TokenIssuer, opts...)
	if err != nil {
		return nil, err
	}
	lockout := LockoutPolicy{MaxAttempts: cfg.MaxLoginAttempts, Duration: cfg.LockoutDuration}
	policy := DefaultRatePolicy()

	c := &Core{
		Store:    store,
		Policy:   policy,
		Status:   NewStatusGate(store, lockout, opts...),
		Limiter:  NewLimiter(store, opts...),
		MFA:      NewMFAGate(store, opts...),
		Signup:   NewSignupValidator(store, cfg.PhysicianDomainWhitelist, cfg.InvitationTokenSalt, opts...),
		Tokens:   tokens,
		Issuer:   issuer,
		Sessions: NewSessionGuard(store, opts...),
	}
	c.PreAuth = NewPreAuthenticator(store, c.Status, c.Limiter, c.MFA, policy, opts...)
	return c, nil
}
