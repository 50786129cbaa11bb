package daemon

import (
	"net/http"
	"strings"

	"github.com/hack-dance/hackd/pkg/apierrors"
	"github.com/hack-dance/hackd/pkg/tokens"
)

// authGate enforces §4.H "Authentication" for the secondary TCP bind:
// every request must present a bearer token; write-scope is required for
// every non-GET method and, when the server is configured with
// allowWrites required, for /v1/logs as well; read-scope suffices
// otherwise.
func (s *Server) authGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, apierrors.New(apierrors.CodeUnauthorized, "missing bearer token"))
			return
		}

		record, ok := s.tokens.Verify(secret)
		if !ok || record == nil {
			writeError(w, http.StatusUnauthorized, apierrors.New(apierrors.CodeUnauthorized, "invalid or revoked token"))
			return
		}

		needsWrite := r.Method != http.MethodGet && r.Method != http.MethodHead
		if r.URL.Path == "/v1/logs" && s.allowWrites {
			needsWrite = true
		}
		if needsWrite && record.Scope != tokens.ScopeWrite {
			writeError(w, http.StatusUnauthorized, apierrors.New(apierrors.CodeUnauthorized, "write scope required"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}
