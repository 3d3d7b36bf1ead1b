package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signClaims(t *testing.T, claims jwt.Claims, method jwt.SigningMethod, key any) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func validClaims() Claims {
	return Claims{
		Email:    "dr@hospital.org",
		UserType: "physician",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ID:        "jti-1",
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
	}
}

func newValidator(t *testing.T, store Store) *TokenValidator {
	t.Helper()
	v, err := NewTokenValidator(store, testSecret, fixedClock())
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	return v
}

func TestTokenValidatorAcceptsValidToken(t *testing.T) {
	c := validClaims()
	tok := signClaims(t, c, jwt.SigningMethodHS256, []byte(testSecret))

	uc, err := newValidator(t, NewMemoryStore()).Validate(context.Background(), tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if uc.ID != "user-1" || uc.Email != "dr@hospital.org" || uc.UserType != "physician" || uc.TokenID != "jti-1" {
		t.Fatalf("unexpected context %+v", uc)
	}
	if uc.Permissions == nil || len(uc.Permissions) != 0 {
		t.Fatalf("permissions should default to empty, got %#v", uc.Permissions)
	}
}

func TestTokenValidatorRejectsExpiryBoundary(t *testing.T) {
	v := newValidator(t, NewMemoryStore())
	for _, exp := range []time.Time{testNow, testNow.Add(-time.Second)} {
		c := validClaims()
		c.ExpiresAt = jwt.NewNumericDate(exp)
		tok := signClaims(t, c, jwt.SigningMethodHS256, []byte(testSecret))
		if _, err := v.Validate(context.Background(), tok); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("exp=%v: expected ErrUnauthorized, got %v", exp, err)
		}
	}
}

func TestTokenValidatorRejections(t *testing.T) {
	missingSub := validClaims()
	missingSub.Subject = ""
	missingEmail := validClaims()
	missingEmail.Email = ""
	missingType := validClaims()
	missingType.UserType = ""
	future := validClaims()
	future.NotBefore = jwt.NewNumericDate(testNow.Add(time.Minute))

	cases := map[string]string{
		"empty":         "",
		"garbage":       "not.a.jwt",
		"bad signature": signClaims(t, validClaims(), jwt.SigningMethodHS256, []byte("other")),
		"wrong alg":     signClaims(t, validClaims(), jwt.SigningMethodHS512, []byte(testSecret)),
		"missing sub":   signClaims(t, missingSub, jwt.SigningMethodHS256, []byte(testSecret)),
		"missing email": signClaims(t, missingEmail, jwt.SigningMethodHS256, []byte(testSecret)),
		"missing type":  signClaims(t, missingType, jwt.SigningMethodHS256, []byte(testSecret)),
		"not yet valid": signClaims(t, future, jwt.SigningMethodHS256, []byte(testSecret)),
	}
	v := newValidator(t, NewMemoryStore())
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Validate(context.Background(), tok); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestTokenValidatorBlacklist(t *testing.T) {
	store := NewMemoryStore()
	v := newValidator(t, store)
	tok := signClaims(t, validClaims(), jwt.SigningMethodHS256, []byte(testSecret))
	ctx := context.Background()

	if err := v.Revoke(ctx, "jti-1", testNow.Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	_, err := v.Validate(ctx, tok)
	if !errors.Is(err, ErrUnauthorized) || !strings.Contains(err.Error(), "revoked") {
		t.Fatalf("expected revoked rejection, got %v", err)
	}
}

func TestTokenValidatorBlacklistFailsOpen(t *testing.T) {
	v := newValidator(t, brokenBlacklist{NewMemoryStore()})
	tok := signClaims(t, validClaims(), jwt.SigningMethodHS256, []byte(testSecret))
	if _, err := v.Validate(context.Background(), tok); err != nil {
		t.Fatalf("expected fail-open, got %v", err)
	}
}

func TestNewTokenValidatorRequiresSecret(t *testing.T) {
	if _, err := NewTokenValidator(NewMemoryStore(), "  "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestExtractToken(t *testing.T) {
	cases := []struct {
		header, query, want string
	}{
		{"Bearer abc", "xyz", "abc"},
		{"bearer abc", "", "abc"},
		{"", "xyz", "xyz"},
		{"Basic Zm9v", "xyz", "xyz"},
		{"Bearer ", "xyz", "xyz"},
		{"", "", ""},
	}
	for _, tc := range cases {
		if got := ExtractToken(tc.header, tc.query); got != tc.want {
			t.Errorf("ExtractToken(%q, %q) = %q, want %q", tc.header, tc.query, got, tc.want)
		}
	}
}

func TestIssuerRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, "trialgate", fixedClock())
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	tok, issued, err := issuer.Issue(UserContext{ID: "u-9", Email: "p@example.org", UserType: "patient", Permissions: []string{"read:self"}}, 15*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.TokenID == "" || !issued.ExpiresAt.Equal(testNow.Add(15*time.Minute)) {
		t.Fatalf("unexpected issued context %+v", issued)
	}

	uc, err := newValidator(t, NewMemoryStore()).Validate(context.Background(), tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if uc.TokenID != issued.TokenID || uc.Variant() != VariantPatient || len(uc.Permissions) != 1 {
		t.Fatalf("round trip mismatch: %+v", uc)
	}
}
