// Package daemon implements the Daemon Server of spec §4.H: a UDS-bound
// HTTP surface with path-based routing, bearer-token auth for an optional
// secondary TCP bind, and a uniform error/deadline contract.
package daemon

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/hack-dance/hackd/pkg/apierrors"
	"github.com/hack-dance/hackd/pkg/logpipe"
	"github.com/hack-dance/hackd/pkg/registry"
	"github.com/hack-dance/hackd/pkg/status"
	"github.com/hack-dance/hackd/pkg/tokens"
	"github.com/hack-dance/hackd/pkg/utils"
)

// defaultDeadline is the server-wide cap on handler execution (§4.H
// "Request/response contract").
const defaultDeadline = 5 * time.Second

// Server is the process-wide HTTP surface. It can be served over a UDS
// (the default, trusted-by-filesystem-permissions) and, optionally, a
// secondary TCP bind gated by bearer tokens (§4.H "Authentication").
type Server struct {
	log               *logrus.Entry
	registry          *registry.Store
	tokens            *tokens.Store
	reconciler        *status.Reconciler
	pipeline          *logpipe.Pipeline
	daemonInfo        status.DaemonInfoFunc
	allowWrites       bool
	reconcileInterval time.Duration

	metrics *Metrics

	readersMu deadlock.Mutex
	readers   map[*logpipe.Reader]struct{}

	mux http.Handler
}

// Deps bundles the subsystems a Server dispatches to.
type Deps struct {
	Log               *logrus.Entry
	Registry          *registry.Store
	Tokens            *tokens.Store
	Reconciler        *status.Reconciler
	Pipeline          *logpipe.Pipeline
	DaemonInfo        status.DaemonInfoFunc
	AllowWrites       bool
	ReconcileInterval time.Duration
}

// New builds a Server wired to the given subsystems.
func New(d Deps) *Server {
	interval := d.ReconcileInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	s := &Server{
		log:               d.Log,
		registry:          d.Registry,
		tokens:            d.Tokens,
		reconciler:        d.Reconciler,
		pipeline:          d.Pipeline,
		daemonInfo:        d.DaemonInfo,
		allowWrites:       d.AllowWrites,
		reconcileInterval: interval,
		metrics:           NewMetrics(),
		readers:           make(map[*logpipe.Reader]struct{}),
	}
	s.mux = s.routes()
	return s
}

// trackReader registers a streaming log reader so it can be force-closed on
// server shutdown instead of leaking until its client disconnects.
func (s *Server) trackReader(r *logpipe.Reader) {
	s.readersMu.Lock()
	s.readers[r] = struct{}{}
	s.readersMu.Unlock()
}

func (s *Server) untrackReader(r *logpipe.Reader) {
	s.readersMu.Lock()
	delete(s.readers, r)
	s.readersMu.Unlock()
}

// closeActiveReaders closes every reader still open at shutdown time,
// aggregating close errors the way utils.CloseMany does for any io.Closer.
func (s *Server) closeActiveReaders() {
	s.readersMu.Lock()
	closers := make([]io.Closer, 0, len(s.readers))
	for r := range s.readers {
		closers = append(closers, r)
	}
	s.readersMu.Unlock()

	if err := utils.CloseMany(closers); err != nil && s.log != nil {
		s.log.WithError(err).Warn("errors closing active log readers on shutdown")
	}
}

// ServeUDS binds and serves on a Unix domain socket at path with 0600
// permissions (§4.A, §4.H).
func (s *Server) ServeUDS(ctx context.Context, path string) error {
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}
	return s.serve(ctx, ln, false)
}

// ServeTCP binds and serves on the given host:port for the optional
// gateway/secondary-bind role. trusted callers on this listener must
// authenticate via bearer token (§4.H "Authentication").
func (s *Server) ServeTCP(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}
	return s.serve(ctx, ln, true)
}

func (s *Server) serve(ctx context.Context, ln net.Listener, requireAuth bool) error {
	handler := s.mux
	if requireAuth {
		handler = s.authGate(handler)
	}

	httpServer := &http.Server{
		Handler:      s.wrap(handler),
		ReadTimeout:  defaultDeadline,
		WriteTimeout: defaultDeadline + time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		s.closeActiveReaders()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// streamingPaths are long-lived SSE endpoints exempt from the fixed 5s
// handler deadline: §4.H's cap governs request/response handlers, while
// these intentionally stay open until the client disconnects or the
// pipeline emits `end`. Their cancellation bound is client disconnect
// alone, propagated via r.Context().
var streamingPaths = map[string]bool{
	"/v1/logs":   true,
	"/v1/events": true,
}

func (s *Server) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := newRequestID()
		w.Header().Set("X-Request-Id", id)

		if streamingPaths[r.URL.Path] {
			s.metrics.recordRequest(r.URL.Path)
			// Lift the server-wide WriteTimeout so the stream is bounded
			// by client disconnect alone.
			_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
			next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
			return
		}

		deadline := defaultDeadline
		if h := r.Header.Get("X-Deadline-Ms"); h != "" {
			if ms, err := strconv.ParseInt(h, 10, 64); err == nil && ms > 0 && time.Duration(ms)*time.Millisecond < deadline {
				deadline = time.Duration(ms) * time.Millisecond
			}
		}

		ctx, cancel := context.WithTimeout(withRequestID(r.Context(), id), deadline)
		defer cancel()

		s.metrics.recordRequest(r.URL.Path)
		start := time.Now()

		rec := httptest.NewRecorder()
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer func() {
				if p := recover(); p != nil {
					stackErr := apierrors.WrapStack(fmt.Errorf("panic: %v", p))
					if s.log != nil {
						s.log.WithFields(logrus.Fields{
							"requestId": id,
							"path":      r.URL.Path,
							"stack":     apierrors.StackOf(stackErr),
						}).Error("recovered panic handling request")
					}
					writeError(rec, http.StatusInternalServerError, apierrors.New(apierrors.CodeInternal, "internal error"))
				}
			}()
			next.ServeHTTP(rec, r.WithContext(ctx))
		}()

		// next.ServeHTTP only ever writes to rec, never to w directly, so
		// whichever branch below wins the race is the sole writer to w.
		select {
		case <-done:
			copyRecorded(w, rec)
		case <-ctx.Done():
			writeError(w, http.StatusGatewayTimeout, apierrors.New(apierrors.CodeTimeout, "request exceeded deadline"))
		}

		s.metrics.recordDuration(r.URL.Path, time.Since(start))
		if s.log != nil {
			s.log.WithFields(logrus.Fields{
				"requestId": id,
				"path":      r.URL.Path,
				"method":    r.Method,
			}).Debug("handled request")
		}
	})
}

// copyRecorded replays a buffered handler response onto the real
// ResponseWriter. Used once the handler goroutine has finished without
// hitting the deadline, so w is only ever touched by one goroutine.
func copyRecorded(w http.ResponseWriter, rec *httptest.ResponseRecorder) {
	for k, vv := range rec.Header() {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	code := rec.Code
	if code == 0 {
		code = http.StatusOK
	}
	w.WriteHeader(code)
	_, _ = w.Write(rec.Body.Bytes())
}

func newRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "req-unavailable"
	}
	return "req_" + hex.EncodeToString(buf)
}
