package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func fixedClock() Option { return WithClock(func() time.Time { return testNow }) }

func ptrTime(t time.Time) *time.Time { return &t }

var totpMethods = json.RawMessage(`{"totp":true}`)

type captureAuditor struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditor) Record(_ context.Context, e AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *captureAuditor) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.EventType
	}
	return out
}

var errDBDown = errors.New("db down")

// brokenRates fails every rate limit query.
type brokenRates struct{ *MemoryStore }

func (b brokenRates) RateLimits(context.Context) RateLimitStore { return failingRateStore{} }

type failingRateStore struct{}

func (failingRateStore) Count(context.Context, string, string, time.Time) (int, error) {
	return 0, errDBDown
}
func (failingRateStore) Record(context.Context, string, string, time.Time) error { return errDBDown }

// brokenWrites fails lock/unlock writes but serves reads.
type brokenWrites struct{ *MemoryStore }

func (b brokenWrites) Accounts(ctx context.Context) AccountStore {
	return failingAccountWrites{AccountStore: b.MemoryStore.Accounts(ctx)}
}

type failingAccountWrites struct{ AccountStore }

func (failingAccountWrites) Lock(context.Context, Variant, string, time.Time) error { return errDBDown }
func (failingAccountWrites) Unlock(context.Context, Variant, string) error           { return errDBDown }

// brokenBlacklist fails blacklist lookups.
type brokenBlacklist struct{ *MemoryStore }

func (b brokenBlacklist) Blacklist(context.Context) BlacklistStore { return failingBlacklist{} }

type failingBlacklist struct{}

func (failingBlacklist) IsBlacklisted(context.Context, string, time.Time) (bool, error) {
	return false, errDBDown
}
func (failingBlacklist) Add(context.Context, BlacklistEntry) error { return errDBDown }
