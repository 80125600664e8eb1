package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/captify/captify/internal/platform/errors"
	"github.com/captify/captify/internal/platform/requestctx"
	"github.com/captify/captify/internal/services/web/identity"
	"github.com/captify/captify/internal/services/web/platform/requestmeta"
	"github.com/captify/captify/internal/services/web/platform/sessioncookie"
	"github.com/captify/captify/internal/services/web/session"
)

type sessionBody struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Ready     bool      `json:"ready"`
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sc *session.Context)

// withSession resolves the session cookie before next. Unsafe methods must
// also come from the same origin.
func (a *API) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessioncookie.Read(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, string(apperrors.CodeUnauthenticated), "session is required")
			return
		}
		if !safeMethod(r.Method) && !requestmeta.SameOrigin(r, a.policy) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "cross-origin request rejected")
			return
		}
		sc, found, err := a.sessions.Get(r.Context(), sessionID)
		if err != nil {
			a.writeFailure(w, r, err)
			return
		}
		if !found {
			sessioncookie.Clear(w, r, a.policy)
			writeError(w, http.StatusUnauthorized, string(apperrors.CodeSessionExpired), "session expired")
			return
		}
		ctx := requestctx.WithSessionID(requestctx.WithUserID(r.Context(), sc.UserID), sc.ID)
		next(w, r.WithContext(ctx), sc)
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// handleLogin exchanges a bearer token for a session context and cookie. A
// live session named by the request cookie is closed first.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	token, ok := identity.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, string(apperrors.CodeUnauthenticated), "bearer token is required")
		return
	}
	claims, err := a.verifier.Verify(token)
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}

	if previous, ok := sessioncookie.Read(r); ok {
		if err := a.sessions.Close(r.Context(), previous); err != nil {
			a.logger.Warn("close previous session", zap.Error(err))
		}
	}

	sc, err := a.sessions.Open(r.Context(), claims.UserID, claims.ExpiresAt)
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	sessioncookie.Write(w, r, sc.ID, sc.ExpiresAt.Sub(a.clock()), a.policy)
	writeJSON(w, http.StatusCreated, sessionBody{
		SessionID: sc.ID,
		UserID:    sc.UserID,
		ExpiresAt: sc.ExpiresAt,
		Ready:     sc.Cache.IsReady(),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request, sc *session.Context) {
	if err := a.sessions.Close(r.Context(), sc.ID); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	sessioncookie.Clear(w, r, a.policy)
	w.WriteHeader(http.StatusNoContent)
}
