// Package ids mints the ULID keys for audit, rate-limit and session rows.
package ids

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// New returns a ULID stamped with the wall clock.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a ULID stamped with t. A zero t falls back to the wall clock.
// Keys minted for the same millisecond stay strictly increasing.
func NewAt(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// Time reports the timestamp encoded in id.
func Time(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
