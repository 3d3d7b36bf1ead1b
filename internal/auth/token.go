package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"trialgate.org/internal/obs"
)

const bearerPrefix = "bearer "

var errMissingSecret = errors.New("auth: token secret is not configured")

// Claims is the access token payload shared by issuer and validator.
type Claims struct {
	Email       string   `json:"email,omitempty"`
	UserType    string   `json:"userType,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// ExtractToken returns the bearer token from the Authorization header, falling
// back to the token query parameter.
func ExtractToken(authorization, queryToken string) string {
	authorization = strings.TrimSpace(authorization)
	if len(authorization) > len(bearerPrefix) && strings.EqualFold(authorization[:len(bearerPrefix)], bearerPrefix) {
		if tok := strings.TrimSpace(authorization[len(bearerPrefix):]); tok != "" {
			return tok
		}
	}
	return strings.TrimSpace(queryToken)
}

// TokenValidator verifies HS256 access tokens and checks the jti blacklist.
type TokenValidator struct {
	store  Store
	secret []byte
	opts   options
}

func NewTokenValidator(store Store, secret string, opts ...Option) (*TokenValidator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errMissingSecret
	}
	return &TokenValidator{store: store, secret: []byte(secret), opts: buildOptions(opts)}, nil
}

// Validate returns the user context carried by a valid, non-revoked token.
// Every rejection wraps ErrUnauthorized.
func (v *TokenValidator) Validate(ctx context.Context, raw string) (UserContext, error) {
	uc, err := v.validate(ctx, raw)
	obs.GateDecision("token", Kind(err))
	return uc, err
}

func (v *TokenValidator) validate(ctx context.Context, raw string) (UserContext, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return UserContext{}, fmt.Errorf("%w: no token provided", ErrUnauthorized)
	}
	now := v.opts.now()
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		return UserContext{}, fmt.Errorf("%w: %s", ErrUnauthorized, describeJWTError(err))
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return UserContext{}, fmt.Errorf("%w: token expired", ErrUnauthorized)
	}
	if claims.Subject == "" || claims.Email == "" || claims.UserType == "" {
		return UserContext{}, fmt.Errorf("%w: invalid token claims", ErrUnauthorized)
	}
	if claims.ID != "" {
		revoked, err := v.store.Blacklist(ctx).IsBlacklisted(ctx, claims.ID, now)
		if err != nil {
			obs.BestEffortFailure("blacklist_lookup")
			obs.Warn("blacklist lookup failed, allowing token", map[string]any{"jti": claims.ID, "error": err})
		} else if revoked {
			return UserContext{}, fmt.Errorf("%w: token has been revoked", ErrUnauthorized)
		}
	}

	perms := claims.Permissions
	if perms == nil {
		perms = []string{}
	}
	uc := UserContext{
		ID:          claims.Subject,
		Email:       claims.Email,
		UserType:    claims.UserType,
		Permissions: perms,
		TokenID:     claims.ID,
	}
	if claims.ExpiresAt != nil {
		uc.ExpiresAt = claims.ExpiresAt.Time
	}
	return uc, nil
}

// Revoke blacklists the token id until the token would have expired anyway.
func (v *TokenValidator) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return fmt.Errorf("%w: token has no id", ErrUnauthorized)
	}
	if expiresAt.IsZero() {
		expiresAt = v.opts.now().Add(24 * time.Hour)
	}
	return v.store.Blacklist(ctx).Add(ctx, BlacklistEntry{TokenID: tokenID, ExpiresAt: expiresAt})
}

func describeJWTError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "token not yet valid"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "invalid token signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed token"
	default:
		return "invalid token"
	}
}

// TokenIssuer signs access tokens with the validator's claim shape.
type TokenIssuer struct {
	secret []byte
	issuer string
	opts   options
}

func NewTokenIssuer(secret, issuer string, opts ...Option) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errMissingSecret
	}
	return &TokenIssuer{secret: []byte(secret), issuer: strings.TrimSpace(issuer), opts: buildOptions(opts)}, nil
}

// Issue signs a token for the user. The returned context carries the new jti.
func (i *TokenIssuer) Issue(user UserContext, ttl time.Duration) (string, UserContext, error) {
	if strings.TrimSpace(user.ID) == "" {
		return "", UserContext{}, errors.New("auth: user id is required")
	}
	if ttl <= 0 {
		return "", UserContext{}, errors.New("auth: ttl must be greater than zero")
	}
	now := i.opts.now().UTC()
	user.TokenID = uuid.NewString()
	user.ExpiresAt = now.Add(ttl).Truncate(time.Second)
	claims := Claims{
		Email:       user.Email,
		UserType:    user.UserType,
		Permissions: user.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(user.ExpiresAt),
			ID:        user.TokenID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", UserContext{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, user, nil
}
