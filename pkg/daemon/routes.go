package daemon

import (
	"net/http"
	"strings"

	"github.com/hack-dance/hackd/pkg/apierrors"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/metrics", s.handleMetrics)
	mux.HandleFunc("/v1/projects", s.handleProjects)
	mux.HandleFunc("/v1/projects/", s.handleProjectByID)
	mux.HandleFunc("/v1/tokens", s.handleTokens)
	mux.HandleFunc("/v1/tokens/", s.handleTokenByID)
	mux.HandleFunc("/v1/logs", s.handleLogs)
	mux.HandleFunc("/v1/events", s.handleEvents)

	return mux
}

// asError turns an arbitrary error into the *apierrors.Error the daemon's
// response contract requires, defaulting to CodeInternal.
func asError(err error) *apierrors.Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*apierrors.Error); ok {
		return e
	}
	return apierrors.Wrap(apierrors.CodeInternal, err)
}

func pathSuffix(r *http.Request, prefix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/")
}
