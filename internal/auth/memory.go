package auth

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"trialgate.org/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store used when no database is configured and in tests.
type MemoryStore struct {
	mu          sync.Mutex
	accounts    map[Variant]map[string]*Account
	physInvites []Invitation
	patInvites  map[string]Invitation
	rateLog     []rateRow
	blacklist   map[string]time.Time
	sessions    map[string]*Session
	audit       []AuditEntry
}

type rateRow struct {
	limitType  string
	identifier string
	at         time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: map[Variant]map[string]*Account{
			VariantPhysician: {},
			VariantPatient:   {},
		},
		patInvites: make(map[string]Invitation),
		blacklist:  make(map[string]time.Time),
		sessions:   make(map[string]*Session),
	}
}

// PutAccount inserts or replaces an account keyed by its variant and email.
func (m *MemoryStore) PutAccount(acc Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byEmail, ok := m.accounts[acc.Variant]
	if !ok {
		return fmt.Errorf("%w: account variant %s", ErrInvalidConfiguration, acc.Variant)
	}
	if acc.ID == "" {
		acc.ID = ids.New()
	}
	cp := acc
	byEmail[acc.Email] = &cp
	return nil
}

// Account returns a copy of the stored account.
func (m *MemoryStore) Account(variant Variant, email string) (Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[variant][email]
	if !ok {
		return Account{}, false
	}
	return *acc, true
}

// PutPhysicianInvitation stores a physician invitation.
func (m *MemoryStore) PutPhysicianInvitation(inv Invitation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.physInvites = append(m.physInvites, inv)
}

// PutPatientInvitation stores a patient invitation keyed by TokenHash.
func (m *MemoryStore) PutPatientInvitation(inv Invitation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patInvites[inv.TokenHash] = inv
}

// AuditEntries returns a copy of everything appended so far.
func (m *MemoryStore) AuditEntries() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}

// SessionByID returns a copy of the stored session.
func (m *MemoryStore) SessionByID(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (m *MemoryStore) Accounts(context.Context) AccountStore       { return memAccounts{m} }
func (m *MemoryStore) Invitations(context.Context) InvitationStore { return memInvitations{m} }
func (m *MemoryStore) RateLimits(context.Context) RateLimitStore   { return memRateLimits{m} }
func (m *MemoryStore) Blacklist(context.Context) BlacklistStore    { return memBlacklist{m} }
func (m *MemoryStore) Sessions(context.Context) SessionStore       { return memSessions{m} }
func (m *MemoryStore) Audit(context.Context) AuditStore            { return memAudit{m} }

type memAccounts struct{ m *MemoryStore }

func (s memAccounts) lookup(variant Variant, email string) (*Account, error) {
	byEmail, ok := s.m.accounts[variant]
	if !ok {
		return nil, ErrInvalidConfiguration
	}
	acc, ok := byEmail[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

func (s memAccounts) FindByEmail(_ context.Context, variant Variant, email string) (*Account, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	acc, err := s.lookup(variant, email)
	if err != nil {
		return nil, err
	}
	cp := *acc
	return &cp, nil
}

func (s memAccounts) Exists(_ context.Context, variant Variant, email string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	_, ok := s.m.accounts[variant][email]
	return ok, nil
}

func (s memAccounts) Lock(_ context.Context, variant Variant, email string, until time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	acc, err := s.lookup(variant, email)
	if err != nil {
		return err
	}
	acc.LockedUntil = &until
	if acc.Status == StatusActive {
		acc.Status = StatusLocked
	}
	return nil
}

func (s memAccounts) Unlock(_ context.Context, variant Variant, email string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	acc, err := s.lookup(variant, email)
	if err != nil {
		return err
	}
	acc.LockedUntil = nil
	acc.FailedLoginAttempts = 0
	if acc.Status == StatusLocked {
		acc.Status = StatusActive
	}
	return nil
}

func (s memAccounts) IncrementFailedAttempts(_ context.Context, variant Variant, email string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	acc, err := s.lookup(variant, email)
	if err != nil {
		return err
	}
	acc.FailedLoginAttempts++
	return nil
}

type memInvitations struct{ m *MemoryStore }

func (s memInvitations) PhysicianInvitations(_ context.Context, email string) ([]Invitation, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []Invitation
	for _, inv := range s.m.physInvites {
		if inv.Email == email {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.After(out[j].ExpiresAt) })
	return out, nil
}

func (s memInvitations) PatientInvitation(_ context.Context, tokenHash string) (*Invitation, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	inv, ok := s.m.patInvites[tokenHash]
	if !ok {
		return nil, errNotFound
	}
	return &inv, nil
}

type memRateLimits struct{ m *MemoryStore }

func (s memRateLimits) Count(_ context.Context, limitType, identifier string, since time.Time) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	n := 0
	for _, row := range s.m.rateLog {
		if row.limitType == limitType && row.identifier == identifier && row.at.After(since) {
			n++
		}
	}
	return n, nil
}

func (s memRateLimits) Record(_ context.Context, limitType, identifier string, at time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.rateLog = append(s.m.rateLog, rateRow{limitType: limitType, identifier: identifier, at: at})
	return nil
}

type memBlacklist struct{ m *MemoryStore }

func (s memBlacklist) IsBlacklisted(_ context.Context, tokenID string, now time.Time) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	exp, ok := s.m.blacklist[tokenID]
	return ok && exp.After(now), nil
}

func (s memBlacklist) Add(_ context.Context, entry BlacklistEntry) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if cur, ok := s.m.blacklist[entry.TokenID]; ok && cur.After(entry.ExpiresAt) {
		return nil
	}
	s.m.blacklist[entry.TokenID] = entry.ExpiresAt
	return nil
}

type memSessions struct{ m *MemoryStore }

func (s memSessions) Create(_ context.Context, sess *Session) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if sess.ID == "" {
		sess.ID = ids.NewAt(sess.CreatedAt)
	}
	sess.IsActive = true
	cp := *sess
	s.m.sessions[sess.ID] = &cp
	return nil
}

func (s memSessions) Find(_ context.Context, userID, tokenID string) (*Session, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var best *Session
	for _, sess := range s.m.sessions {
		if sess.UserID != userID || sess.TokenID != tokenID {
			continue
		}
		if best == nil || (sess.IsActive && !best.IsActive) ||
			(sess.IsActive == best.IsActive && sess.CreatedAt.After(best.CreatedAt)) {
			best = sess
		}
	}
	if best == nil {
		return nil, errNotFound
	}
	cp := *best
	return &cp, nil
}

func (s memSessions) Touch(_ context.Context, sessionID string, at time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if sess, ok := s.m.sessions[sessionID]; ok && sess.IsActive {
		sess.LastActivityAt = at
	}
	return nil
}

func (s memSessions) End(_ context.Context, sessionID string, at time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if sess, ok := s.m.sessions[sessionID]; ok && sess.IsActive {
		sess.IsActive = false
		sess.EndedAt = &at
	}
	return nil
}

type memAudit struct{ m *MemoryStore }

func (s memAudit) Append(_ context.Context, entry *AuditEntry) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = ids.NewAt(entry.CreatedAt)
	}
	s.m.audit = append(s.m.audit, *entry)
	return nil
}
