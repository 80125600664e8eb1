// Package httpapi exposes web session contexts over JSON routes.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/captify/captify/internal/platform/errors"
	"github.com/captify/captify/internal/services/shared/route"
	"github.com/captify/captify/internal/services/web/identity"
	"github.com/captify/captify/internal/services/web/platform/requestmeta"
	"github.com/captify/captify/internal/services/web/session"
)

// Sessions resolves session contexts.
type Sessions interface {
	Open(ctx context.Context, userID string, notAfter time.Time) (*session.Context, error)
	Get(ctx context.Context, sessionID string) (*session.Context, bool, error)
	Close(ctx context.Context, sessionID string) error
}

// TokenVerifier checks login bearer tokens.
type TokenVerifier interface {
	Verify(token string) (identity.Claims, error)
}

// Config wires the API dependencies.
type Config struct {
	Sessions     Sessions
	Verifier     TokenVerifier
	SchemePolicy requestmeta.SchemePolicy
	Clock        func() time.Time
	Logger       *zap.Logger
}

// API is the HTTP surface of the web service.
type API struct {
	sessions Sessions
	verifier TokenVerifier
	policy   requestmeta.SchemePolicy
	clock    func() time.Time
	logger   *zap.Logger
	mux      *http.ServeMux

	closeOnce sync.Once
	closing   chan struct{}
}

// New builds the API routes.
func New(cfg Config) (*API, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("session registry is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &API{
		sessions: cfg.Sessions,
		verifier: cfg.Verifier,
		policy:   cfg.SchemePolicy,
		clock:    clock,
		logger:   logger,
		mux:      http.NewServeMux(),
		closing:  make(chan struct{}),
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	a.mux.HandleFunc("POST /api/session", a.handleLogin)
	a.mux.HandleFunc("DELETE /api/session", a.withSession(a.handleLogout))

	a.mux.HandleFunc("GET /api/cache/stats", a.withSession(a.handleCacheStats))
	a.mux.HandleFunc("GET /api/cache/events", a.withSession(a.handleCacheEvents))
	a.mux.HandleFunc("POST /api/cache/refresh", a.withSession(a.handleCacheRefresh))
	a.mux.HandleFunc("GET /api/cache/{collection}", a.withSession(a.handleCacheList))
	a.mux.HandleFunc("GET /api/cache/{collection}/{id}", a.withSession(a.handleCacheGet))
	a.mux.HandleFunc("PUT /api/cache/{collection}/{id}", a.withSession(a.handleCachePut))
	a.mux.HandleFunc("DELETE /api/cache/{collection}/{id}", a.withSession(a.handleCacheDelete))

	a.mux.HandleFunc("GET /api/ontology/status", a.withSession(a.handleOntologyStatus))
	a.mux.HandleFunc("POST /api/ontology/load", a.withSession(a.handleOntologyLoad))
	a.mux.HandleFunc("GET /api/ontology/{collection}", a.withSession(a.handleOntologyList))
	a.mux.HandleFunc("POST /api/ontology/{collection}", a.withSession(a.handleOntologyCreate))
	a.mux.HandleFunc("PATCH /api/ontology/{collection}/{slug}", a.withSession(a.handleOntologyUpdate))
	a.mux.HandleFunc("DELETE /api/ontology/{collection}/{slug}", a.withSession(a.handleOntologyDelete))

	a.mux.HandleFunc("/", a.handleUnmatched)
}

func (a *API) handleUnmatched(w http.ResponseWriter, r *http.Request) {
	if route.RedirectTrailingSlash(w, r) {
		return
	}
	writeError(w, http.StatusNotFound, string(apperrors.CodeNotFound), "no route for "+r.Method+" "+r.URL.Path)
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// CloseStreams ends every open event stream. Hijacked connections are not
// drained by http.Server.Shutdown, so servers register this on shutdown.
func (a *API) CloseStreams() {
	a.closeOnce.Do(func() { close(a.closing) })
}
