package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"trialgate.org/internal/auth"
	"trialgate.org/internal/config"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

const (
	physicianPool = "eu-central-1_physicianPool"
	patientPool   = "eu-central-1_patientPool"
	salt          = "salt"
)

type events struct {
	mu   sync.Mutex
	seen []string
}

func (e *events) record(_ context.Context, entry auth.AuditEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, entry.EventType)
}

func newHandler(t *testing.T, store *auth.MemoryStore) (*Handler, *events) {
	t.Helper()
	ev := &events{}
	cfg := &config.Config{
		AuthSecret:          "secret",
		MaxLoginAttempts:    5,
		LockoutDuration:     30 * time.Minute,
		InvitationTokenSalt: salt,
	}
	core, err := auth.NewCore(store, cfg,
		auth.WithClock(func() time.Time { return now }),
		auth.WithAuditor(auth.AuditorFunc(ev.record)))
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	return NewHandler(core), ev
}

func TestPreSignUpPatientGetsIdentifier(t *testing.T) {
	store := auth.NewMemoryStore()
	store.PutPatientInvitation(auth.Invitation{
		TokenHash: auth.HashInvitationToken("tok-1", salt),
		Status:    auth.InvitationActive,
		ExpiresAt: now.Add(time.Hour),
	})
	h, _ := newHandler(t, store)

	in := &PreSignUpEvent{
		UserPoolID:    patientPool,
		TriggerSource: TriggerSignUp,
		Request: Request{
			UserAttributes: map[string]string{AttrEmail: "p@example.org"},
			ValidationData: map[string]string{"invitationToken": "tok-1"},
		},
		Response: SignUpResponse{UserAttributes: map[string]string{"locale": "en"}},
	}
	out, err := h.PreSignUp(context.Background(), in)
	if err != nil {
		t.Fatalf("PreSignUp: %v", err)
	}
	id := out.Response.UserAttributes[AttrPatientID]
	if !strings.HasPrefix(id, "PAT-") {
		t.Fatalf("expected patient id, got %q", id)
	}
	if out.Response.UserAttributes["locale"] != "en" {
		t.Fatalf("existing response attributes dropped: %v", out.Response.UserAttributes)
	}
	if _, ok := in.Response.UserAttributes[AttrPatientID]; ok {
		t.Fatal("input event must not be mutated")
	}
	if out.Response.AutoConfirmUser {
		t.Fatal("native signup must not auto confirm")
	}
}

func TestPreSignUpExternalPhysicianAutoConfirms(t *testing.T) {
	store := auth.NewMemoryStore()
	store.PutPhysicianInvitation(auth.Invitation{Email: "dr@hospital.org", Status: auth.InvitationActive, ExpiresAt: now.Add(time.Hour)})
	h, _ := newHandler(t, store)

	out, err := h.PreSignUp(context.Background(), &PreSignUpEvent{
		UserPoolID:    physicianPool,
		TriggerSource: TriggerExternalProvider,
		Request: Request{UserAttributes: map[string]string{
			AttrEmail:          "dr@hospital.org",
			AttrMedicalLicense: "MD-55821",
		}},
	})
	if err != nil {
		t.Fatalf("PreSignUp: %v", err)
	}
	if !out.Response.AutoConfirmUser || !out.Response.AutoVerifyEmail || out.Response.AutoVerifyPhone {
		t.Fatalf("unexpected response %+v", out.Response)
	}
	if _, ok := out.Response.UserAttributes[AttrPatientID]; ok {
		t.Fatal("physicians must not receive a patient id")
	}
}

func TestPreSignUpRejections(t *testing.T) {
	h, _ := newHandler(t, auth.NewMemoryStore())
	ctx := context.Background()

	if _, err := h.PreSignUp(ctx, &PreSignUpEvent{}); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
	_, err := h.PreSignUp(ctx, &PreSignUpEvent{
		UserPoolID: physicianPool,
		Request:    Request{UserAttributes: map[string]string{AttrEmail: "dr@hospital.org"}},
	})
	if !errors.Is(err, auth.ErrInvalidInvitation) {
		t.Fatalf("expected ErrInvalidInvitation, got %v", err)
	}
}

func TestPreAuthenticationPassesEventThrough(t *testing.T) {
	store := auth.NewMemoryStore()
	store.PutAccount(auth.Account{
		Variant:       auth.VariantPhysician,
		Email:         "dr@hospital.org",
		Status:        auth.StatusActive,
		EmailVerified: true,
		MFAEnabled:    true,
		MFAMethods:    json.RawMessage(`["totp"]`),
	})
	h, ev := newHandler(t, store)

	in := &PreAuthenticationEvent{
		UserPoolID: physicianPool,
		UserName:   "dr@hospital.org",
		Request: Request{
			UserAttributes: map[string]string{},
			ClientMetadata: map[string]string{"sourceIp": "192.0.2.10", "userAgent": "portal"},
		},
	}
	out, err := h.PreAuthentication(context.Background(), in)
	if err != nil {
		t.Fatalf("PreAuthentication: %v", err)
	}
	if out != in {
		t.Fatal("expected the event back unchanged")
	}
	if len(ev.seen) != 1 || ev.seen[0] != auth.EventPreAuthentication {
		t.Fatalf("unexpected audit events %v", ev.seen)
	}
}

func TestPreAuthenticationBlocksLockedAccount(t *testing.T) {
	store := auth.NewMemoryStore()
	until := now.Add(10 * time.Minute)
	store.PutAccount(auth.Account{
		Variant:       auth.VariantPatient,
		Email:         "p@example.org",
		Status:        auth.StatusLocked,
		LockedUntil:   &until,
		EmailVerified: true,
	})
	h, ev := newHandler(t, store)

	_, err := h.PreAuthentication(context.Background(), &PreAuthenticationEvent{
		UserPoolID: patientPool,
		Request:    Request{UserAttributes: map[string]string{AttrEmail: "p@example.org"}},
	})
	if !errors.Is(err, auth.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if len(ev.seen) != 1 || ev.seen[0] != auth.EventPreAuthenticationFailed {
		t.Fatalf("unexpected audit events %v", ev.seen)
	}
}
