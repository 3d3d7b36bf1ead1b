// Package httpapi is the HTTP surface: lifecycle hook endpoints, the
// authenticated API and operational probes.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"trialgate.org/internal/auth"
	"trialgate.org/internal/hooks"
	"trialgate.org/internal/obs"
)

const (
	serviceName   = "trialgate-api"
	maxHookBody   = 64 << 10
	defaultBurst  = 50
	defaultPerSec = 25
	readyTimeout  = 2 * time.Second
)

// ReadyProbe checks that the store is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the collaborators the API needs.
type Deps struct {
	Core    *auth.Core
	Hooks   *hooks.Handler
	Ready   ReadyProbe
	Version string

	// Front-door token bucket for hook endpoints, per client IP.
	HookBurst     int
	HookPerSecond int

	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP.
	// Leave off unless a proxy in front overwrites those headers.
	TrustProxyHeaders bool
}

// API is the HTTP layer.
type API struct {
	router     chi.Router
	core       *auth.Core
	hooks      *hooks.Handler
	readyProbe ReadyProbe
	version    string
	burst      int
	perSec     int
	trustProxy bool
}

func New(d Deps) *API {
	a := &API{
		router:     chi.NewRouter(),
		core:       d.Core,
		hooks:      d.Hooks,
		readyProbe: d.Ready,
		version:    d.Version,
		burst:      d.HookBurst,
		perSec:     d.HookPerSecond,
		trustProxy: d.TrustProxyHeaders,
	}
	if a.hooks == nil && a.core != nil {
		a.hooks = hooks.NewHandler(a.core)
	}
	if a.burst <= 0 {
		a.burst = defaultBurst
	}
	if a.perSec <= 0 {
		a.perSec = defaultPerSec
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router
	r.Use(RequestID)
	if a.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(LoggingJSON)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(CORS)
	r.Use(obs.Instrument)

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1/hooks", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return RateLimit(next, a.burst, a.perSec) })
		r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, maxHookBody) })
		r.Post("/pre-signup", a.handlePreSignUp)
		r.Post("/pre-authentication", a.handlePreAuthentication)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.Authenticate)
		r.Get("/v1/me", a.handleMe)
		r.Post("/v1/auth/logout", a.handleLogout)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Handler returns the http.Handler for the server.
func (a *API) Handler() http.Handler {
	return a.router
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// decodeJSON reads exactly one JSON value. Unknown fields are allowed because
// identity-provider events grow over time.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
