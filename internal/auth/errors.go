package auth

import (
	"errors"
	"fmt"
)

// Validation errors block the guarded action and always reach the caller.
var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountNotActive      = errors.New("account is not active")
	ErrAccountLocked         = errors.New("account is temporarily locked due to too many failed login attempts")
	ErrEmailNotVerified      = errors.New("email address is not verified")
	ErrMFANotConfigured      = errors.New("multi-factor authentication is not configured")
	ErrInvalidConfiguration  = errors.New("invalid user pool configuration")
	ErrRateLimitExceeded     = errors.New("too many requests")
	ErrInvalidInvitation     = errors.New("invalid or expired invitation")
	ErrDuplicateAccount      = errors.New("an account with this email already exists")
	ErrInvalidMedicalLicense = errors.New("invalid medical license number")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidSession        = errors.New("invalid session")
	ErrSessionExpired        = errors.New("session expired due to inactivity")
)

// errNotFound is returned by stores for missing rows that are not accounts.
var errNotFound = errors.New("auth: not found")

// StatusError reports a non-active account together with its stored status.
type StatusError struct {
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("account is %s", e.Status)
}

func (e *StatusError) Unwrap() error { return ErrAccountNotActive }

// Rate limit scopes used in RateLimitError.
const (
	ScopeIP    = "ip"
	ScopeEmail = "email"
	ScopeUser  = "user"
	ScopeAuth  = "auth"
)

// RateLimitError carries the scope that tripped and the limiter decision.
type RateLimitError struct {
	Scope    string
	Decision Decision
}

func (e *RateLimitError) Error() string {
	switch e.Scope {
	case ScopeIP:
		return "too many login attempts from this IP address, please try again later"
	case ScopeEmail:
		return "too many login attempts for this account, please try again later"
	case ScopeAuth:
		return "too many authentication requests, please try again later"
	default:
		return "rate limit exceeded, please try again later"
	}
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }

// Kind maps an error to a short stable label for metrics and audit payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return "pass"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrAccountNotActive):
		return "account_not_active"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrEmailNotVerified):
		return "email_not_verified"
	case errors.Is(err, ErrMFANotConfigured):
		return "mfa_not_configured"
	case errors.Is(err, ErrInvalidConfiguration):
		return "invalid_configuration"
	case errors.Is(err, ErrRateLimitExceeded):
		return "rate_limit_exceeded"
	case errors.Is(err, ErrInvalidInvitation):
		return "invalid_invitation"
	case errors.Is(err, ErrDuplicateAccount):
		return "duplicate_account"
	case errors.Is(err, ErrInvalidMedicalLicense):
		return "invalid_medical_license"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidSession):
		return "invalid_session"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	default:
		return "internal"
	}
}

// IsValidation reports whether err is a business-rule rejection rather than an
// infrastructure failure.
func IsValidation(err error) bool {
	k := Kind(err)
	return k != "pass" && k != "internal"
}
