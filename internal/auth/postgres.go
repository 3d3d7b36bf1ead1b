package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trialgate.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Accounts(context.Context) AccountStore       { return &accountStore{db: s.db} }
func (s *PGStore) Invitations(context.Context) InvitationStore { return &invitationStore{db: s.db} }
func (s *PGStore) RateLimits(context.Context) RateLimitStore   { return &rateLimitStore{db: s.db} }
func (s *PGStore) Blacklist(context.Context) BlacklistStore    { return &blacklistStore{db: s.db} }
func (s *PGStore) Sessions(context.Context) SessionStore       { return &sessionStore{db: s.db} }
func (s *PGStore) Audit(context.Context) AuditStore            { return &auditStore{db: s.db} }

func accountTable(v Variant) (string, error) {
	switch v {
	case VariantPhysician:
		return "physicians", nil
	case VariantPatient:
		return "patients", nil
	default:
		return "", fmt.Errorf("%w: unknown account variant", ErrInvalidConfiguration)
	}
}

// Account store ------------------------------------------------------------
type accountStore struct{ db *sql.DB }

func (s *accountStore) FindByEmail(ctx context.Context, variant Variant, email string) (*Account, error) {
	table, err := accountTable(variant)
	if err != nil {
		return nil, err
	}
	emergency := "null::timestamptz"
	if variant == VariantPhysician {
		emergency = "emergency_access_until"
	}
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`select id, email, status, failed_login_attempts, locked_until, email_verified, mfa_enabled, mfa_methods, %s
		 from %s where email=$1`, emergency, table), email)

	var (
		acc         Account
		lockedUntil sql.NullTime
		emergencyTS sql.NullTime
		methods     []byte
	)
	if err := row.Scan(&acc.ID, &acc.Email, &acc.Status, &acc.FailedLoginAttempts, &lockedUntil,
		&acc.EmailVerified, &acc.MFAEnabled, &methods, &emergencyTS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	acc.Variant = variant
	if lockedUntil.Valid {
		t := lockedUntil.Time
		acc.LockedUntil = &t
	}
	if emergencyTS.Valid {
		t := emergencyTS.Time
		acc.EmergencyAccessUntil = &t
	}
	if len(methods) > 0 {
		acc.MFAMethods = json.RawMessage(methods)
	}
	return &acc, nil
}

func (s *accountStore) Exists(ctx context.Context, variant Variant, email string) (bool, error) {
	table, err := accountTable(variant)
	if err != nil {
		return false, err
	}
	var exists bool
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select exists(select 1 from %s where email=$1)`, table), email).Scan(&exists)
	return exists, err
}

func (s *accountStore) Lock(ctx context.Context, variant Variant, email string, until time.Time) error {
	table, err := accountTable(variant)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`update %s set locked_until=$1, status=case when status='active' then 'locked' else status end, updated_at=now() where email=$2`, table),
		until, email)
	return err
}

func (s *accountStore) Unlock(ctx context.Context, variant Variant, email string) error {
	table, err := accountTable(variant)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`update %s set locked_until=null, failed_login_attempts=0, status=case when status='locked' then 'active' else status end, updated_at=now() where email=$1`, table),
		email)
	return err
}

func (s *accountStore) IncrementFailedAttempts(ctx context.Context, variant Variant, email string) error {
	table, err := accountTable(variant)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`update %s set failed_login_attempts=failed_login_attempts+1, updated_at=now() where email=$1`, table),
		email)
	return err
}

// Invitation store ---------------------------------------------------------
type invitationStore struct{ db *sql.DB }

func (s *invitationStore) PhysicianInvitations(ctx context.Context, email string) ([]Invitation, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, email, organization_id, expires_at, used_at, status
		 from physician_invitations where email=$1 order by expires_at desc`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Invitation
	for rows.Next() {
		var (
			inv    Invitation
			usedAt sql.NullTime
		)
		if err := rows.Scan(&inv.ID, &inv.Email, &inv.OrganizationID, &inv.ExpiresAt, &usedAt, &inv.Status); err != nil {
			return nil, err
		}
		if usedAt.Valid {
			t := usedAt.Time
			inv.UsedAt = &t
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}

func (s *invitationStore) PatientInvitation(ctx context.Context, tokenHash string) (*Invitation, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, token_hash, organization_id, expires_at, used_at, status
		 from patient_invitations where token_hash=$1`, tokenHash)
	var (
		inv    Invitation
		email  sql.NullString
		usedAt sql.NullTime
	)
	if err := row.Scan(&inv.ID, &email, &inv.TokenHash, &inv.OrganizationID, &inv.ExpiresAt, &usedAt, &inv.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound
		}
		return nil, err
	}
	inv.Email = email.String
	if usedAt.Valid {
		t := usedAt.Time
		inv.UsedAt = &t
	}
	return &inv, nil
}

// Rate limit store ---------------------------------------------------------
type rateLimitStore struct{ db *sql.DB }

func (s *rateLimitStore) Count(ctx context.Context, limitType, identifier string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from rate_limit_log where limit_type=$1 and identifier=$2 and created_at > $3`,
		limitType, identifier, since).Scan(&n)
	return n, err
}

func (s *rateLimitStore) Record(ctx context.Context, limitType, identifier string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`insert into rate_limit_log(id, limit_type, identifier, created_at) values($1,$2,$3,$4)`,
		ids.NewAt(at), limitType, identifier, at)
	return err
}

// Blacklist store ----------------------------------------------------------
type blacklistStore struct{ db *sql.DB }

func (s *blacklistStore) IsBlacklisted(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from token_blacklist where token_id=$1 and expires_at > $2)`,
		tokenID, now).Scan(&exists)
	return exists, err
}

func (s *blacklistStore) Add(ctx context.Context, entry BlacklistEntry) error {
	_, err := s.db.ExecContext(ctx,
		`insert into token_blacklist(token_id, expires_at) values($1,$2)
		 on conflict (token_id) do update set expires_at=greatest(token_blacklist.expires_at, excluded.expires_at)`,
		entry.TokenID, entry.ExpiresAt)
	return err
}

// Session store ------------------------------------------------------------
type sessionStore struct{ db *sql.DB }

func (s *sessionStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = ids.NewAt(sess.CreatedAt)
	}
	_, err := s.db.ExecContext(ctx,
		`insert into user_sessions(id, user_id, token_id, last_activity_at, created_at, is_active)
		 values($1,$2,$3,$4,$5,true)`,
		sess.ID, sess.UserID, sess.TokenID, sess.LastActivityAt, sess.CreatedAt)
	if err == nil {
		sess.IsActive = true
	}
	return err
}

func (s *sessionStore) Find(ctx context.Context, userID, tokenID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token_id, last_activity_at, created_at, is_active, ended_at
		 from user_sessions where user_id=$1 and token_id=$2
		 order by is_active desc, created_at desc limit 1`, userID, tokenID)
	var (
		sess    Session
		endedAt sql.NullTime
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.TokenID, &sess.LastActivityAt, &sess.CreatedAt, &sess.IsActive, &endedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound
		}
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	return &sess, nil
}

func (s *sessionStore) Touch(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update user_sessions set last_activity_at=$1 where id=$2 and is_active`, at, sessionID)
	return err
}

func (s *sessionStore) End(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update user_sessions set is_active=false, ended_at=$1 where id=$2 and is_active`, at, sessionID)
	return err
}

// Audit store --------------------------------------------------------------
type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ids.NewAt(entry.CreatedAt)
	}
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into audit_logs(id, event_type, user_email, details, ip_address, user_agent, created_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		entry.ID, entry.EventType, entry.Email, details, entry.SourceIP, entry.UserAgent, entry.CreatedAt,
	)
	return err
}
