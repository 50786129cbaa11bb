package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/hack-dance/hackd/pkg/apierrors"
)

// handleEvents serves GET /v1/events as a server-sent stream of status
// change notifications (§4.H, §4.F watch loop).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, apierrors.New(apierrors.CodeInvalidRequest, "method not allowed"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, apierrors.New(apierrors.CodeInternal, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	_, changes := s.reconciler.Watch(ctx, s.reconcileInterval, s.daemonInfo, false)

	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if err := enc.Encode(change); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

