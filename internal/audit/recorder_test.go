package audit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"trialgate.org/internal/auth"
	"trialgate.org/internal/obs"
)

type failingAudit struct{ auth.Store }

func (f failingAudit) Audit(context.Context) auth.AuditStore { return failingAppend{} }

type failingAppend struct{}

func (failingAppend) Append(context.Context, *auth.AuditEntry) error {
	return errors.New("connection refused")
}

func TestRecorderPersistsEntry(t *testing.T) {
	store := auth.NewMemoryStore()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := NewRecorder(store, WithClock(func() time.Time { return fixed }))

	logger := obs.Logger()
	original := logger.Writer()
	logger.SetOutput(&bytes.Buffer{})
	defer logger.SetOutput(original)

	ctx := WithRequestID(context.Background(), "req-9")
	rec.Record(ctx, auth.AuditEntry{EventType: "pre_authentication", Email: "p@example.org", SourceIP: "10.0.0.1"})

	entries := store.AuditEntries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.ID == "" || !got.CreatedAt.Equal(fixed) {
		t.Fatalf("id/created_at not populated: %+v", got)
	}
	if got.Details["request_id"] != "req-9" {
		t.Fatalf("request id not attached: %v", got.Details)
	}
}

func TestRecorderSwallowsWriteFailure(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	rec := NewRecorder(failingAudit{Store: auth.NewMemoryStore()})
	rec.Record(context.Background(), auth.AuditEntry{EventType: "account_locked", Email: "dr@example.org"})

	if !strings.Contains(buf.String(), "audit write failed") {
		t.Fatalf("expected operational log line, got %q", buf.String())
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	rec.Record(context.Background(), auth.AuditEntry{EventType: "x"})
}
