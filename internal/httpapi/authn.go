package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trialgate.org/internal/auth"
	"trialgate.org/internal/obs"
)

const authHeader = "Authorization"

// Authenticate runs token validation, the three rate limit tiers and the
// session guard in that order. The first failure is written as a 401 or 429
// and the chain stops.
func (a *API) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()

		token := auth.ExtractToken(r.Header.Get(authHeader), r.URL.Query().Get("token"))
		user, err := a.core.Tokens.Validate(ctx, token)
		if err != nil {
			rejectAuth(w, r, err)
			return
		}

		if err := a.enforceRequestLimits(ctx, user, clientIP(r), isAuthEndpoint(r.URL.Path)); err != nil {
			rejectAuth(w, r, err)
			return
		}

		sess, err := a.core.Sessions.Check(ctx, user)
		if err != nil {
			rejectAuth(w, r, err)
			return
		}

		ctx = auth.ContextWithUser(ctx, user)
		ctx = auth.ContextWithSession(ctx, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// enforceRequestLimits applies the per-user, per-IP and auth-endpoint tiers.
func (a *API) enforceRequestLimits(ctx context.Context, user auth.UserContext, ip string, authEndpoint bool) error {
	policy := a.core.Policy
	if _, err := a.core.Limiter.Enforce(ctx, auth.ScopeUser, auth.LimitTypeUser, user.Email, policy.User); err != nil {
		return err
	}
	if ip != "" {
		if _, err := a.core.Limiter.Enforce(ctx, auth.ScopeIP, auth.LimitTypeIP, ip, policy.IP); err != nil {
			return err
		}
	}
	if authEndpoint {
		if _, err := a.core.Limiter.Enforce(ctx, auth.ScopeAuth, auth.LimitTypeAuth, user.Email+":"+ip, policy.Auth); err != nil {
			return err
		}
	}
	return nil
}

func isAuthEndpoint(path string) bool {
	return strings.HasPrefix(path, "/v1/auth/")
}

func rejectAuth(w http.ResponseWriter, r *http.Request, err error) {
	var rl *auth.RateLimitError
	switch {
	case errors.As(err, &rl):
		writeRateLimited(w, r, rl)
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidSession),
		errors.Is(err, auth.ErrSessionExpired):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	default:
		obs.Log("error", "authentication failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err,
		})
		writeError(w, r, http.StatusInternalServerError, "authentication error")
	}
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, rl *auth.RateLimitError) {
	d := rl.Decision
	h := w.Header()
	h.Set("Retry-After", strconv.Itoa(int(d.Window/time.Second)))
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Scope", rl.Scope)
	writeError(w, r, http.StatusTooManyRequests, rl.Error())
}
