// Package api implements the Echoes REST API using chi.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/echoes/internal/remotesync"
	"github.com/starford/echoes/internal/session"
)

type ctxKey int

const (
	credentialKey ctxKey = iota
	sessionKey
)

// bearer extracts the token of an "Authorization: Bearer <token>" header.
func bearer(r *http.Request) remotesync.Credential {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return remotesync.Credential(strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
}

// RequireCredential rejects requests without a Bearer token. The token is
// the storage credential forwarded to remote writes; it is not checked here.
func RequireCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred := bearer(r)
		if cred.Empty() {
			writeJSON(w, http.StatusUnauthorized, errResponse{Error: "storage token required", Code: codeAuth})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), credentialKey, cred)))
	})
}

func credentialFrom(ctx context.Context) remotesync.Credential {
	cred, _ := ctx.Value(credentialKey).(remotesync.Credential)
	return cred
}

// SessionCtx loads the session named by the {sid} URL parameter.
func SessionCtx(mgr *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := mgr.Get(chi.URLParam(r, "sid"))
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, s)))
		})
	}
}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey).(*session.Session)
	return s
}
