package ids

import (
	"testing"
	"time"
)

func TestNewAtEncodesTimestamp(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	id := NewAt(at)
	got, err := Time(id)
	if err != nil {
		t.Fatalf("Time(%q): %v", id, err)
	}
	if !got.Equal(at) {
		t.Fatalf("decoded %v, want %v", got, at)
	}
}

func TestNewAtSortsWithinOneMillisecond(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	prev := NewAt(at)
	for i := 0; i < 100; i++ {
		next := NewAt(at)
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestNewAtZeroUsesWallClock(t *testing.T) {
	before := time.Now().Add(-time.Second)
	got, err := Time(NewAt(time.Time{}))
	if err != nil {
		t.Fatalf("Time: %v", err)
	}
	if got.Before(before) {
		t.Fatalf("zero time not replaced: %v", got)
	}
}
