package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Variant distinguishes the two account populations.
type Variant int

const (
	VariantUnknown Variant = iota
	VariantPhysician
	VariantPatient
)

func (v Variant) String() string {
	switch v {
	case VariantPhysician:
		return "physician"
	case VariantPatient:
		return "patient"
	default:
		return "unknown"
	}
}

// ResolveVariant derives the variant from an identity-provider pool identifier.
func ResolveVariant(poolID string) (Variant, error) {
	id := strings.ToLower(poolID)
	switch {
	case strings.Contains(id, "physician"):
		return VariantPhysician, nil
	case strings.Contains(id, "patient"):
		return VariantPatient, nil
	default:
		return VariantUnknown, fmt.Errorf("%w: unrecognised pool %q", ErrInvalidConfiguration, poolID)
	}
}

// ParseVariant maps a userType claim to a Variant.
func ParseVariant(s string) Variant {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "physician":
		return VariantPhysician
	case "patient":
		return VariantPatient
	default:
		return VariantUnknown
	}
}

// Account statuses.
const (
	StatusActive    = "active"
	StatusLocked    = "locked"
	StatusSuspended = "suspended"
	StatusPending   = "pending"
)

// Account is a physician or patient row. EmergencyAccessUntil is always nil for patients.
type Account struct {
	ID                   string
	Variant              Variant
	Email                string
	Status               string
	FailedLoginAttempts  int
	LockedUntil          *time.Time
	EmailVerified        bool
	MFAEnabled           bool
	MFAMethods           json.RawMessage
	EmergencyAccessUntil *time.Time
}

// HasMFAMethods reports whether a non-null MFA descriptor is stored.
func (a *Account) HasMFAMethods() bool {
	raw := strings.TrimSpace(string(a.MFAMethods))
	return raw != "" && raw != "null"
}

// AuditEntry is an immutable security event.
type AuditEntry struct {
	ID        string
	EventType string
	Email     string
	Details   map[string]any
	SourceIP  string
	UserAgent string
	CreatedAt time.Time
}

// Rate limit types stored in rate_limit_log.limit_type.
const (
	LimitTypeIP           = "ip"
	LimitTypeUser         = "user"
	LimitTypeAuth         = "auth"
	LimitTypePreAuthIP    = "preauth_ip"
	LimitTypePreAuthEmail = "preauth_email"
)

// Invitation statuses.
const (
	InvitationActive  = "active"
	InvitationRevoked = "revoked"
	InvitationUsed    = "used"
)

// Invitation is a pre-issued signup credential. Email may be empty for patient
// invitations; TokenHash is empty for physician invitations.
type Invitation struct {
	ID             string
	Email          string
	TokenHash      string
	OrganizationID string
	ExpiresAt      time.Time
	UsedAt         *time.Time
	Status         string
}

// Consumable reports whether the invitation is active, unused and unexpired at now.
func (i *Invitation) Consumable(now time.Time) bool {
	return i.Status == InvitationActive && i.UsedAt == nil && i.ExpiresAt.After(now)
}

// BlacklistEntry revokes a token id until ExpiresAt.
type BlacklistEntry struct {
	TokenID   string
	ExpiresAt time.Time
}

// Session tracks activity for one (user, token) pair.
type Session struct {
	ID             string
	UserID         string
	TokenID        string
	LastActivityAt time.Time
	CreatedAt      time.Time
	IsActive       bool
	EndedAt        *time.Time
}

// UserContext is attached to authenticated requests.
type UserContext struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	UserType    string   `json:"userType"`
	Permissions []string `json:"permissions"`
	TokenID     string   `json:"tokenId"`
	// ExpiresAt is the token expiry, used when revoking.
	ExpiresAt time.Time `json:"-"`
}

// Variant returns the variant named by UserType.
func (u UserContext) Variant() Variant { return ParseVariant(u.UserType) }
