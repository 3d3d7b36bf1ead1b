package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMFAGateEmergencyAccess(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name      string
		emergency time.Time
		wantErr   error
	}{
		{"window open", testNow.Add(time.Hour), nil},
		{"window closed", testNow.Add(-time.Hour), ErrMFANotConfigured},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewMemoryStore()
			store.PutAccount(Account{
				Variant:              VariantPhysician,
				Email:                "dr@example.org",
				Status:               StatusActive,
				EmailVerified:        true,
				MFAEnabled:           false,
				EmergencyAccessUntil: ptrTime(tc.emergency),
			})
			err := NewMFAGate(store, fixedClock()).Validate(ctx, VariantPhysician, "dr@example.org")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestMFAGateNoBypassForPatients(t *testing.T) {
	gate := NewMFAGate(NewMemoryStore(), fixedClock())
	acc := &Account{Variant: VariantPatient, EmergencyAccessUntil: ptrTime(testNow.Add(time.Hour))}
	if err := gate.Evaluate(acc); !errors.Is(err, ErrMFANotConfigured) {
		t.Fatalf("expected ErrMFANotConfigured, got %v", err)
	}
}

func TestMFAGateRequiresEnabledAndMethods(t *testing.T) {
	gate := NewMFAGate(NewMemoryStore(), fixedClock())
	cases := []struct {
		acc     Account
		wantErr error
	}{
		{Account{Variant: VariantPatient, MFAEnabled: true, MFAMethods: totpMethods}, nil},
		{Account{Variant: VariantPatient, MFAEnabled: true}, ErrMFANotConfigured},
		{Account{Variant: VariantPatient, MFAEnabled: true, MFAMethods: []byte("null")}, ErrMFANotConfigured},
		{Account{Variant: VariantPhysician, MFAEnabled: false, MFAMethods: totpMethods}, ErrMFANotConfigured},
	}
	for i, tc := range cases {
		if err := gate.Evaluate(&tc.acc); !errors.Is(err, tc.wantErr) {
			t.Fatalf("case %d: expected %v, got %v", i, tc.wantErr, err)
		}
	}
}
