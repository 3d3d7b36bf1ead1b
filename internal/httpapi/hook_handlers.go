package httpapi

import (
	"errors"
	"net/http"

	"trialgate.org/internal/auth"
	"trialgate.org/internal/hooks"
	"trialgate.org/internal/obs"
)

func (a *API) handlePreSignUp(w http.ResponseWriter, r *http.Request) {
	var ev hooks.PreSignUpEvent
	if err := decodeJSON(r, &ev); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	out, err := a.hooks.PreSignUp(r.Context(), &ev)
	if err != nil {
		writeHookError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handlePreAuthentication(w http.ResponseWriter, r *http.Request) {
	var ev hooks.PreAuthenticationEvent
	if err := decodeJSON(r, &ev); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// The identity provider normally supplies the caller address; fall back to
	// the connection when it does not.
	if ev.Request.ClientMetadata == nil {
		ev.Request.ClientMetadata = map[string]string{}
	}
	if ev.Request.ClientMetadata["sourceIp"] == "" {
		ev.Request.ClientMetadata["sourceIp"] = clientIP(r)
	}
	if ev.Request.ClientMetadata["userAgent"] == "" {
		ev.Request.ClientMetadata["userAgent"] = r.UserAgent()
	}

	out, err := a.hooks.PreAuthentication(r.Context(), &ev)
	if err != nil {
		writeHookError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeHookError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *auth.RateLimitError
	switch {
	case errors.Is(err, hooks.ErrMalformedEvent):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &rl):
		writeRateLimited(w, r, rl)
	case auth.IsValidation(err):
		writeError(w, r, http.StatusForbidden, err.Error())
	default:
		obs.Log("error", "hook evaluation failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
			"error":      err,
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
