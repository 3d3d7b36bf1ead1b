// Package hooks adapts identity-provider lifecycle events to the auth gates.
package hooks

import "strings"

// Trigger sources and attribute names used by the identity provider.
const (
	TriggerSignUp           = "PreSignUp_SignUp"
	TriggerAdminCreateUser  = "PreSignUp_AdminCreateUser"
	TriggerExternalProvider = "PreSignUp_ExternalProvider"
	TriggerAuthentication   = "PreAuthentication_Authentication"

	AttrEmail           = "email"
	AttrMedicalLicense  = "custom:medical_license"
	AttrInvitationToken = "custom:invitation_token"
	AttrPatientID       = "custom:patient_id"

	metaSourceIP        = "sourceIp"
	metaUserAgent       = "userAgent"
	dataInvitationToken = "invitationToken"
)

// Request is the request half shared by both events.
type Request struct {
	UserAttributes map[string]string `json:"userAttributes"`
	ValidationData map[string]string `json:"validationData,omitempty"`
	ClientMetadata map[string]string `json:"clientMetadata,omitempty"`
}

func (r Request) attr(name string) string {
	return strings.TrimSpace(r.UserAttributes[name])
}

// SignUpResponse is what the identity provider applies after a pre-signup hook.
type SignUpResponse struct {
	AutoConfirmUser bool              `json:"autoConfirmUser"`
	AutoVerifyEmail bool              `json:"autoVerifyEmail"`
	AutoVerifyPhone bool              `json:"autoVerifyPhone"`
	UserAttributes  map[string]string `json:"userAttributes,omitempty"`
}

// PreSignUpEvent is sent before an account is created.
type PreSignUpEvent struct {
	Version       string         `json:"version,omitempty"`
	Region        string         `json:"region,omitempty"`
	UserPoolID    string         `json:"userPoolId"`
	TriggerSource string         `json:"triggerSource,omitempty"`
	UserName      string         `json:"userName,omitempty"`
	Request       Request        `json:"request"`
	Response      SignUpResponse `json:"response"`
}

// PreAuthenticationEvent is sent before credentials are checked.
type PreAuthenticationEvent struct {
	Version       string         `json:"version,omitempty"`
	Region        string         `json:"region,omitempty"`
	UserPoolID    string         `json:"userPoolId"`
	TriggerSource string         `json:"triggerSource,omitempty"`
	UserName      string         `json:"userName,omitempty"`
	Request       Request        `json:"request"`
	Response      map[string]any `json:"response,omitempty"`
}

func emailOf(r Request, userName string) string {
	if e := r.attr(AttrEmail); e != "" {
		return e
	}
	if strings.Contains(userName, "@") {
		return strings.TrimSpace(userName)
	}
	return ""
}
