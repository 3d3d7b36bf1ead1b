package audit

import (
	"context"
	"time"

	"trialgate.org/internal/auth"
	"trialgate.org/internal/obs"
)

const defaultWriteTimeout = 2 * time.Second

var _ auth.Auditor = (*Recorder)(nil)

// Recorder persists audit entries to audit_logs. It never returns an error and
// makes one write attempt bounded by a timeout; failures go to the operational log.
type Recorder struct {
	store   auth.Store
	timeout time.Duration
	now     func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithWriteTimeout bounds the single write attempt.
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock overrides the time source used for created_at.
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

func NewRecorder(store auth.Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, timeout: defaultWriteTimeout, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends the entry. Safe to call with a nil receiver.
func (r *Recorder) Record(ctx context.Context, entry auth.AuditEntry) {
	if r == nil || r.store == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry.Details["request_id"] = rid
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.store.Audit(writeCtx).Append(writeCtx, &entry); err != nil {
		obs.BestEffortFailure("audit_write")
		obs.Warn("audit write failed", map[string]any{
			"event": entry.EventType,
			"email": entry.Email,
			"error": err,
		})
		return
	}
	_ = LogEvent(ctx, entry.EventType, map[string]any{
		"email":      entry.Email,
		"source_ip":  entry.SourceIP,
		"user_agent": entry.UserAgent,
	})
}
