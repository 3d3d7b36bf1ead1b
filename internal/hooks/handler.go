package hooks

import (
	"context"
	"errors"
	"strings"

	"trialgate.org/internal/auth"
	"trialgate.org/internal/obs"
)

// ErrMalformedEvent is returned for events that cannot be evaluated at all.
var ErrMalformedEvent = errors.New("hooks: malformed event")

// Handler evaluates lifecycle events. It is safe for concurrent use.
type Handler struct {
	signup  *auth.SignupValidator
	preAuth *auth.PreAuthenticator
}

func NewHandler(core *auth.Core) *Handler {
	return &Handler{signup: core.Signup, preAuth: core.PreAuth}
}

// PreSignUp validates the signup and returns the event with its response
// populated. A non-nil error blocks account creation.
func (h *Handler) PreSignUp(ctx context.Context, ev *PreSignUpEvent) (*PreSignUpEvent, error) {
	if ev == nil || strings.TrimSpace(ev.UserPoolID) == "" {
		return nil, ErrMalformedEvent
	}
	token := ev.Request.attr(AttrInvitationToken)
	if token == "" {
		token = strings.TrimSpace(ev.Request.ValidationData[dataInvitationToken])
	}
	req := auth.SignupRequest{
		PoolID:          ev.UserPoolID,
		Email:           emailOf(ev.Request, ev.UserName),
		MedicalLicense:  ev.Request.attr(AttrMedicalLicense),
		InvitationToken: token,
		External:        ev.TriggerSource == TriggerExternalProvider,
	}

	res, err := h.signup.Validate(ctx, req)
	if err != nil {
		obs.Info("pre-signup rejected", map[string]any{
			"user_pool": ev.UserPoolID,
			"email":     req.Email,
			"kind":      auth.Kind(err),
		})
		return nil, err
	}

	out := *ev
	if res.AutoConfirm {
		out.Response.AutoConfirmUser = true
	}
	if res.AutoVerifyEmail {
		out.Response.AutoVerifyEmail = true
	}
	if res.PatientID != "" {
		attrs := make(map[string]string, len(ev.Response.UserAttributes)+1)
		for k, v := range ev.Response.UserAttributes {
			attrs[k] = v
		}
		attrs[AttrPatientID] = res.PatientID
		out.Response.UserAttributes = attrs
	}
	return &out, nil
}

// PreAuthentication runs the login gates and returns the event unchanged on
// success. A non-nil error blocks the login.
func (h *Handler) PreAuthentication(ctx context.Context, ev *PreAuthenticationEvent) (*PreAuthenticationEvent, error) {
	if ev == nil || strings.TrimSpace(ev.UserPoolID) == "" {
		return nil, ErrMalformedEvent
	}
	err := h.preAuth.Validate(ctx, auth.LoginAttempt{
		PoolID:    ev.UserPoolID,
		Email:     emailOf(ev.Request, ev.UserName),
		SourceIP:  strings.TrimSpace(ev.Request.ClientMetadata[metaSourceIP]),
		UserAgent: strings.TrimSpace(ev.Request.ClientMetadata[metaUserAgent]),
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}
