package httpapi

import (
	"net/http"
	"time"

	"trialgate.org/internal/audit"
	"trialgate.org/internal/auth"
)

type sessionView struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	IdleTimeout    int       `json:"idle_timeout_seconds"`
}

type meResponse struct {
	User    auth.UserContext `json:"user"`
	Session *sessionView     `json:"session,omitempty"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, auth.ErrUnauthorized.Error())
		return
	}
	resp := meResponse{User: user}
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		resp.Session = &sessionView{
			ID:             sess.ID,
			CreatedAt:      sess.CreatedAt,
			LastActivityAt: sess.LastActivityAt,
			IdleTimeout:    int(auth.SessionTimeout(user.Variant()) / time.Second),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, auth.ErrUnauthorized.Error())
		return
	}
	if user.TokenID != "" {
		if err := a.core.Tokens.Revoke(ctx, user.TokenID, user.ExpiresAt); err != nil {
			writeError(w, r, http.StatusInternalServerError, "logout failed")
			return
		}
	}
	if err := a.core.Sessions.End(ctx, user); err != nil {
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}
	_ = audit.LogEvent(ctx, "auth.logout", map[string]any{
		"email":     user.Email,
		"user_type": user.UserType,
		"token_id":  user.TokenID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}
