package daemon

import (
	"net/http"

	"github.com/hack-dance/hackd/pkg/apierrors"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, apierrors.New(apierrors.CodeInvalidRequest, "method not allowed"))
		return
	}

	unregisteredOptIn := r.URL.Query().Get("includeAll") == "true"
	snap := s.reconciler.Latest(r.Context(), s.daemonInfo(), unregisteredOptIn)
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, apierrors.New(apierrors.CodeInvalidRequest, "method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
