package auth

import "time"

type options struct {
	now     func() time.Time
	auditor Auditor
}

// Option configures gate construction.
type Option func(*options)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}

// WithAuditor sets the audit side channel. The default discards entries.
func WithAuditor(a Auditor) Option {
	return func(o *options) {
		if a != nil {
			o.auditor = a
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, auditor: nopAuditor{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
