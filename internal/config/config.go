// Package config loads process configuration from the environment once at start-up.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultMaxLoginAttempts = 5
	defaultLockoutSeconds   = 1800
	defaultHTTPAddr         = ":8080"
	defaultGRPCAddr         = ":9090"
	defaultIssuer           = "trialgate"
)

// ErrMissingSecret is returned when the token signing secret is not set.
var ErrMissingSecret = errors.New("config: TRIALGATE_AUTH_SECRET is required")

// Config is immutable after Load and handed to every component that needs it.
type Config struct {
	DatabaseDSN string
	AuthSecret  string
	TokenIssuer string

	MaxLoginAttempts int
	LockoutDuration  time.Duration

	// Empty means any domain may sign up as a physician.
	PhysicianDomainWhitelist []string
	InvitationTokenSalt      string

	HTTPAddr string
	GRPCAddr string

	// Honour X-Forwarded-For / X-Real-IP. Only set behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// Load reads the environment.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DatabaseDSN:              strings.TrimSpace(getenv("TRIALGATE_PG_DSN")),
		AuthSecret:               strings.TrimSpace(getenv("TRIALGATE_AUTH_SECRET")),
		TokenIssuer:              stringOr(getenv("TRIALGATE_TOKEN_ISSUER"), defaultIssuer),
		MaxLoginAttempts:         intOr(getenv("MAX_LOGIN_ATTEMPTS"), defaultMaxLoginAttempts),
		LockoutDuration:          time.Duration(intOr(getenv("LOCKOUT_DURATION"), defaultLockoutSeconds)) * time.Second,
		PhysicianDomainWhitelist: splitList(getenv("PHYSICIAN_DOMAIN_WHITELIST")),
		InvitationTokenSalt:      getenv("INVITATION_TOKEN_SALT"),
		HTTPAddr:                 stringOr(getenv("TRIALGATE_HTTP_ADDR"), defaultHTTPAddr),
		GRPCAddr:                 stringOr(getenv("TRIALGATE_GRPC_ADDR"), defaultGRPCAddr),
		TrustProxyHeaders:        boolOr(getenv("TRIALGATE_TRUST_PROXY_HEADERS"), false),
	}
	if cfg.AuthSecret == "" {
		return nil, ErrMissingSecret
	}
	return cfg, nil
}

func stringOr(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	return raw
}

func intOr(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func boolOr(raw string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
