package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth core.
type Store interface {
	Accounts(ctx context.Context) AccountStore
	Invitations(ctx context.Context) InvitationStore
	RateLimits(ctx context.Context) RateLimitStore
	Blacklist(ctx context.Context) BlacklistStore
	Sessions(ctx context.Context) SessionStore
	Audit(ctx context.Context) AuditStore
}

// AccountStore reads and mutates physician and patient rows.
type AccountStore interface {
	// FindByEmail returns ErrAccountNotFound when no row matches.
	FindByEmail(ctx context.Context, variant Variant, email string) (*Account, error)
	Exists(ctx context.Context, variant Variant, email string) (bool, error)
	Lock(ctx context.Context, variant Variant, email string, until time.Time) error
	Unlock(ctx context.Context, variant Variant, email string) error
	// IncrementFailedAttempts is an atomic increment in the store.
	IncrementFailedAttempts(ctx context.Context, variant Variant, email string) error
}

// InvitationStore looks up signup invitations. Callers decide consumability.
type InvitationStore interface {
	PhysicianInvitations(ctx context.Context, email string) ([]Invitation, error)
	// PatientInvitation returns errNotFound when no row carries the hash.
	PatientInvitation(ctx context.Context, tokenHash string) (*Invitation, error)
}

// RateLimitStore is the append-only rate_limit_log.
type RateLimitStore interface {
	Count(ctx context.Context, limitType, identifier string, since time.Time) (int, error)
	Record(ctx context.Context, limitType, identifier string, at time.Time) error
}

// BlacklistStore tracks revoked token ids.
type BlacklistStore interface {
	IsBlacklisted(ctx context.Context, tokenID string, now time.Time) (bool, error)
	Add(ctx context.Context, entry BlacklistEntry) error
}

// SessionStore manages user_sessions rows.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, userID, tokenID string) (*Session, error)
	Touch(ctx context.Context, sessionID string, at time.Time) error
	End(ctx context.Context, sessionID string, at time.Time) error
}

// AuditStore appends immutable entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
}

// Auditor is the best-effort audit side channel. Implementations never return
// errors and make at most one bounded write attempt.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditorFunc adapts a function to Auditor.
type AuditorFunc func(ctx context.Context, entry AuditEntry)

func (f AuditorFunc) Record(ctx context.Context, entry AuditEntry) { f(ctx, entry) }

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, AuditEntry) {}
