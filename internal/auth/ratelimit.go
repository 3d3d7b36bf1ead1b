package auth

import (
	"context"
	"time"

	"trialgate.org/internal/obs"
)

// Limit is a request budget over a trailing window.
type Limit struct {
	Max    int
	Window time.Duration
}

// RatePolicy holds the limits for both enforcement layers. The pre-authentication
// IP limit and the middleware IP limit are independent and counted under
// different limit types.
type RatePolicy struct {
	PreAuthIP    Limit
	PreAuthEmail Limit

	User Limit
	IP   Limit
	Auth Limit
}

// DefaultRatePolicy returns the production thresholds.
func DefaultRatePolicy() RatePolicy {
	return RatePolicy{
		PreAuthIP:    Limit{Max: 20, Window: time.Hour},
		PreAuthEmail: Limit{Max: 3, Window: 15 * time.Minute},
		User:         Limit{Max: 100, Window: time.Hour},
		IP:           Limit{Max: 500, Window: time.Hour},
		Auth:         Limit{Max: 20, Window: 15 * time.Minute},
	}
}

// Decision is the result of one limiter check.
type Decision struct {
	Exceeded  bool
	Remaining int
	Limit     int
	Window    time.Duration
}

// Limiter counts requests per (type, identifier) in the relational store.
type Limiter struct {
	store Store
	opts  options
}

func NewLimiter(store Store, opts ...Option) *Limiter {
	return &Limiter{store: store, opts: buildOptions(opts)}
}

// Check counts requests newer than now-window, records this request and
// reports whether the budget is spent. A failed count fails open.
func (l *Limiter) Check(ctx context.Context, limitType, identifier string, limit Limit) Decision {
	now := l.opts.now()
	rates := l.store.RateLimits(ctx)

	count, err := rates.Count(ctx, limitType, identifier, now.Add(-limit.Window))
	failedOpen := err != nil
	if failedOpen {
		obs.BestEffortFailure("rate_limit_count")
		obs.Warn("rate limit count failed, allowing request", map[string]any{
			"limit_type": limitType, "identifier": identifier, "error": err,
		})
		count = 0
	}
	if err := rates.Record(ctx, limitType, identifier, now); err != nil {
		obs.BestEffortFailure("rate_limit_record")
		obs.Warn("rate limit record failed", map[string]any{
			"limit_type": limitType, "identifier": identifier, "error": err,
		})
	}

	d := Decision{
		Exceeded:  count >= limit.Max,
		Remaining: max(0, limit.Max-count),
		Limit:     limit.Max,
		Window:    limit.Window,
	}
	switch {
	case failedOpen:
		obs.RateLimitCheck(limitType, "fail_open")
	case d.Exceeded:
		obs.RateLimitCheck(limitType, "exceeded")
	default:
		obs.RateLimitCheck(limitType, "allowed")
	}
	return d
}

// Enforce wraps Check and returns a RateLimitError for the given scope when exceeded.
func (l *Limiter) Enforce(ctx context.Context, scope, limitType, identifier string, limit Limit) (Decision, error) {
	d := l.Check(ctx, limitType, identifier, limit)
	if d.Exceeded {
		return d, &RateLimitError{Scope: scope, Decision: d}
	}
	return d, nil
}
