package daemon

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hack-dance/hackd/pkg/apierrors"
	"github.com/hack-dance/hackd/pkg/logpipe"
)

// handleLogs serves GET /v1/logs as a server-sent stream of log events
// (§4.H, §4.G "Event stream").
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, apierrors.New(apierrors.CodeInvalidRequest, "method not allowed"))
		return
	}
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, apierrors.New(apierrors.CodeNotReady, "log pipeline not configured"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, apierrors.New(apierrors.CodeInternal, "streaming unsupported"))
		return
	}

	sel := logpipe.Selector{
		Project: r.URL.Query().Get("project"),
		Service: r.URL.Query().Get("service"),
	}
	if tail := r.URL.Query().Get("tail"); tail != "" {
		if n, err := strconv.Atoi(tail); err == nil {
			sel.Tail = n
		}
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339Nano, since); err == nil {
			sel.Since = t
		}
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	reader := logpipe.NewReader(logpipe.DefaultQueueLength)
	s.trackReader(reader)
	defer func() {
		s.untrackReader(reader)
		reader.Close()
	}()

	ctx := r.Context()
	go s.pipeline.Serve(ctx, sel, reader)

	enc := json.NewEncoder(w)
	for {
		reader.Wait(ctx.Done())
		events := reader.Drain()
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return
			}
			if ev.Kind == logpipe.EventEnd {
				flusher.Flush()
				return
			}
		}
		flusher.Flush()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
