package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"trialgate.org/internal/obs"
)

const (
	minLicenseLength = 5
	patientIDPrefix  = "PAT-"
	base36Alphabet   = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// SignupRequest is the validated subset of a pre-signup event.
type SignupRequest struct {
	PoolID          string
	Email           string
	MedicalLicense  string
	InvitationToken string
	// External is set for federated identity-provider signups.
	External bool
}

// SignupResult lists the side effects the identity provider should apply.
type SignupResult struct {
	Variant         Variant
	AutoConfirm     bool
	AutoVerifyEmail bool
	// PatientID is set for patient signups.
	PatientID string
}

// SignupValidator gates account creation for both variants.
type SignupValidator struct {
	store     Store
	whitelist []string
	salt      string
	opts      options
}

// NewSignupValidator builds the validator. An empty whitelist allows every domain.
func NewSignupValidator(store Store, whitelist []string, tokenSalt string, opts ...Option) *SignupValidator {
	domains := make([]string, 0, len(whitelist))
	for _, d := range whitelist {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}
	return &SignupValidator{store: store, whitelist: domains, salt: tokenSalt, opts: buildOptions(opts)}
}

// Validate dispatches on the pool variant.
func (v *SignupValidator) Validate(ctx context.Context, req SignupRequest) (SignupResult, error) {
	variant, err := ResolveVariant(req.PoolID)
	if err != nil {
		obs.GateDecision("pre_signup", Kind(err))
		return SignupResult{}, err
	}
	res := SignupResult{Variant: variant}
	switch variant {
	case VariantPhysician:
		err = v.validatePhysician(ctx, req)
	case VariantPatient:
		err = v.validatePatient(ctx, req)
	}
	obs.GateDecision("pre_signup", Kind(err))
	if err != nil {
		return SignupResult{}, err
	}

	if req.External {
		res.AutoConfirm = true
		res.AutoVerifyEmail = true
	}
	if variant == VariantPatient {
		id, err := NewPatientID(v.opts.now())
		if err != nil {
			return SignupResult{}, fmt.Errorf("generate patient id: %w", err)
		}
		res.PatientID = id
	}
	return res, nil
}

func (v *SignupValidator) validatePhysician(ctx context.Context, req SignupRequest) error {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInvitation)
	}
	if len(v.whitelist) > 0 && !v.domainAllowed(email) {
		return fmt.Errorf("%w: email domain is not authorized for physician registration", ErrInvalidInvitation)
	}

	invites, err := v.store.Invitations(ctx).PhysicianInvitations(ctx, email)
	if err != nil {
		return err
	}
	now := v.opts.now()
	valid := false
	for i := range invites {
		if invites[i].Consumable(now) {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: no valid invitation found for this email", ErrInvalidInvitation)
	}

	if req.MedicalLicense != "" {
		if err := ValidateMedicalLicense(req.MedicalLicense); err != nil {
			return err
		}
	}

	exists, err := v.store.Accounts(ctx).Exists(ctx, VariantPhysician, email)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateAccount
	}
	return nil
}

func (v *SignupValidator) validatePatient(ctx context.Context, req SignupRequest) error {
	token := strings.TrimSpace(req.InvitationToken)
	if token == "" {
		return fmt.Errorf("%w: invitation token is required for patient registration", ErrInvalidInvitation)
	}
	inv, err := v.store.Invitations(ctx).PatientInvitation(ctx, HashInvitationToken(token, v.salt))
	if err != nil {
		if errors.Is(err, errNotFound) {
			return ErrInvalidInvitation
		}
		return err
	}
	if !inv.Consumable(v.opts.now()) {
		return ErrInvalidInvitation
	}
	if inv.Email != "" && inv.Email != req.Email {
		return fmt.Errorf("%w: email does not match invitation", ErrInvalidInvitation)
	}

	exists, err := v.store.Accounts(ctx).Exists(ctx, VariantPatient, req.Email)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateAccount
	}
	return nil
}

func (v *SignupValidator) domainAllowed(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range v.whitelist {
		if domain == d {
			return true
		}
	}
	return false
}

// ValidateMedicalLicense rejects short values and obvious placeholders.
func ValidateMedicalLicense(license string) error {
	license = strings.TrimSpace(license)
	if utf8.RuneCountInString(license) < minLicenseLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrInvalidMedicalLicense, minLicenseLength)
	}
	if strings.Trim(license, "0") == "" || strings.Trim(license, "1") == "" {
		return fmt.Errorf("%w: placeholder value", ErrInvalidMedicalLicense)
	}
	lower := strings.ToLower(license)
	if strings.Contains(lower, "test") || strings.Contains(lower, "demo") {
		return fmt.Errorf("%w: placeholder value", ErrInvalidMedicalLicense)
	}
	return nil
}

// HashInvitationToken is the deterministic lookup key for patient invitations.
func HashInvitationToken(token, salt string) string {
	sum := sha256.Sum256([]byte(salt + token))
	return hex.EncodeToString(sum[:])
}

// NewPatientID returns PAT-<base36 millis>-<6 random base36>, upper-cased.
func NewPatientID(now time.Time) (string, error) {
	suffix := make([]byte, 6)
	limit := big.NewInt(int64(len(base36Alphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		suffix[i] = base36Alphabet[n.Int64()]
	}
	id := patientIDPrefix + strconv.FormatInt(now.UnixMilli(), 36) + "-" + string(suffix)
	return strings.ToUpper(id), nil
}
