package auth

import (
	"context"
	"errors"
	"time"

	"trialgate.org/internal/obs"
)

// Inactivity limits by user type.
const (
	PhysicianSessionTimeout = time.Hour
	PatientSessionTimeout   = 30 * time.Minute
)

// SessionTimeout returns the inactivity limit for a variant. Unknown variants
// get the stricter patient limit.
func SessionTimeout(v Variant) time.Duration {
	if v == VariantPhysician {
		return PhysicianSessionTimeout
	}
	return PatientSessionTimeout
}

// SessionGuard enforces sliding inactivity expiry on (user, token) sessions.
type SessionGuard struct {
	store Store
	opts  options
}

func NewSessionGuard(store Store, opts ...Option) *SessionGuard {
	return &SessionGuard{store: store, opts: buildOptions(opts)}
}

// Check validates the session and refreshes its activity time.
func (g *SessionGuard) Check(ctx context.Context, user UserContext) (*Session, error) {
	sess, err := g.check(ctx, user)
	obs.GateDecision("session", Kind(err))
	return sess, err
}

func (g *SessionGuard) check(ctx context.Context, user UserContext) (*Session, error) {
	sessions := g.store.Sessions(ctx)
	sess, err := sessions.Find(ctx, user.ID, user.TokenID)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	if !sess.IsActive {
		return nil, ErrInvalidSession
	}

	now := g.opts.now()
	if now.Sub(sess.LastActivityAt) > SessionTimeout(user.Variant()) {
		if err := sessions.End(ctx, sess.ID, now); err != nil {
			return nil, err
		}
		sess.IsActive = false
		sess.EndedAt = &now
		return nil, ErrSessionExpired
	}

	if err := sessions.Touch(ctx, sess.ID, now); err != nil {
		return nil, err
	}
	sess.LastActivityAt = now
	return sess, nil
}

// Start opens a session for a freshly issued token.
func (g *SessionGuard) Start(ctx context.Context, user UserContext) (*Session, error) {
	now := g.opts.now()
	sess := &Session{
		UserID:         user.ID,
		TokenID:        user.TokenID,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := g.store.Sessions(ctx).Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// End invalidates the active session for the user's token. Ending an already
// ended or missing session is not an error.
func (g *SessionGuard) End(ctx context.Context, user UserContext) error {
	sessions := g.store.Sessions(ctx)
	sess, err := sessions.Find(ctx, user.ID, user.TokenID)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil
		}
		return err
	}
	if !sess.IsActive {
		return nil
	}
	return sessions.End(ctx, sess.ID, g.opts.now())
}
