// Package supervisor manages hackd as a background process: start, stop,
// restart, status, and (platform-specific) service install (spec §4.I).
package supervisor

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/jesseduffield/kill"
	"github.com/sirupsen/logrus"

	"github.com/hack-dance/hackd/pkg/apierrors"
	"github.com/hack-dance/hackd/pkg/paths"
)

const (
	startPollInterval = 150 * time.Millisecond
	startTimeout      = 2 * time.Second
	stopPollInterval  = 100 * time.Millisecond
	stopTimeout       = 2 * time.Second
	statusPingTimeout = 500 * time.Millisecond
)

// Supervisor drives the daemon's process lifecycle from a CLI-invocation
// process distinct from the daemon itself.
type Supervisor struct {
	paths      *paths.Paths
	log        *logrus.Entry
	executable func() (string, error)
}

// New builds a Supervisor bound to the resolved state paths.
func New(p *paths.Paths, log *logrus.Entry) *Supervisor {
	return &Supervisor{paths: p, log: log, executable: os.Executable}
}

func (s *Supervisor) pingStatus(ctx context.Context) bool {
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", s.paths.SocketPath)
			},
		},
		Timeout: statusPingTimeout,
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/v1/status", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// StartResult reports the outcome of Start.
type StartResult struct {
	AlreadyRunning bool
	Pid            int
}

// Start implements §4.I "start": no-op if the socket already answers ok;
// otherwise clears stale state, re-execs the binary in foreground mode
// detached from this process, and polls for readiness.
func (s *Supervisor) Start(ctx context.Context) (*StartResult, error) {
	pingCtx, cancel := context.WithTimeout(ctx, statusPingTimeout)
	ok := s.pingStatus(pingCtx)
	cancel()
	if ok {
		pid, _ := s.paths.ReadPid()
		return &StartResult{AlreadyRunning: true, Pid: pid}, nil
	}

	if err := s.paths.ClearStale(); err != nil {
		return nil, err
	}

	self, err := s.executable()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, err)
	}

	logFile, err := os.OpenFile(s.paths.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, err)
	}
	defer logFile.Close()

	cmd := exec.Command(self, "run", "--foreground")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	kill.PrepareForChildren(cmd)

	if err := cmd.Start(); err != nil {
		stackErr := apierrors.WrapStack(err)
		if s.log != nil {
			s.log.WithError(err).WithField("stack", apierrors.StackOf(stackErr)).Error("failed to spawn daemon child process")
		}
		return nil, apierrors.Wrap(apierrors.CodeInternal, stackErr)
	}
	// Detach: the supervisor process doesn't wait on the child, and the
	// child outlives this invocation once it's released.
	if err := cmd.Process.Release(); err != nil && s.log != nil {
		s.log.WithError(err).Warn("failed to release daemon child process handle")
	}

	deadline := time.Now().Add(startTimeout)
	for time.Now().Before(deadline) {
		time.Sleep(startPollInterval)
		if !s.paths.SocketExists() {
			continue
		}
		pollCtx, pollCancel := context.WithTimeout(ctx, statusPingTimeout)
		ready := s.pingStatus(pollCtx)
		pollCancel()
		if ready {
			pid, _ := s.paths.ReadPid()
			return &StartResult{Pid: pid}, nil
		}
	}

	return nil, apierrors.New(apierrors.CodeNotReady, "daemon did not become ready within 2s")
}

// Stop implements §4.I "stop": signal, wait, escalate, cleanup.
func (s *Supervisor) Stop(ctx context.Context) error {
	pid, err := s.paths.ReadPid()
	if err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}
	if pid == 0 || !paths.ProcessAlive(pid) {
		s.paths.Release()
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		s.paths.Release()
		return nil
	}
	_ = proc.Signal(syscall.SIGTERM)

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if !paths.ProcessAlive(pid) {
			s.paths.Release()
			return nil
		}
		time.Sleep(stopPollInterval)
	}

	if paths.ProcessAlive(pid) {
		if err := kill.Kill(&exec.Cmd{Process: proc}); err != nil && s.log != nil {
			s.log.WithError(err).Warn("escalated kill failed")
		}
	}

	s.paths.Release()
	return nil
}

// Restart stops then starts the daemon.
func (s *Supervisor) Restart(ctx context.Context) (*StartResult, error) {
	if err := s.Stop(ctx); err != nil {
		return nil, err
	}
	return s.Start(ctx)
}

// ReadinessStatus is one of {running, starting, stale, stopped}.
type ReadinessStatus string

const (
	ReadinessRunning  ReadinessStatus = "running"
	ReadinessStarting ReadinessStatus = "starting"
	ReadinessStale    ReadinessStatus = "stale"
	ReadinessStopped  ReadinessStatus = "stopped"
)

// Report is the daemon lifecycle status returned by Status.
type Report struct {
	Status         ReadinessStatus `json:"status"`
	Pid            int             `json:"pid"`
	ProcessRunning bool            `json:"processRunning"`
	APIOk          bool            `json:"apiOk"`
	SocketExists   bool            `json:"socketExists"`
	LogExists      bool            `json:"logExists"`
	StaleReason    string          `json:"staleReason,omitempty"`
}

// Status implements §4.I "status".
func (s *Supervisor) Status(ctx context.Context) Report {
	pid, _ := s.paths.ReadPid()
	processRunning := pid != 0 && paths.ProcessAlive(pid)
	socketExists := s.paths.SocketExists()

	pingCtx, cancel := context.WithTimeout(ctx, statusPingTimeout)
	apiOk := s.pingStatus(pingCtx)
	cancel()

	_, logErr := os.Stat(s.paths.LogFile)
	logExists := logErr == nil

	report := Report{
		Pid:            pid,
		ProcessRunning: processRunning,
		APIOk:          apiOk,
		SocketExists:   socketExists,
		LogExists:      logExists,
	}

	switch {
	case processRunning && socketExists && apiOk:
		report.Status = ReadinessRunning
	case processRunning && socketExists && !apiOk:
		report.Status = ReadinessStarting
	case socketExists && !processRunning:
		report.Status = ReadinessStale
		report.StaleReason = "socket-only"
	case pid != 0 && !processRunning:
		report.Status = ReadinessStale
		report.StaleReason = "pid-not-running"
	default:
		report.Status = ReadinessStopped
	}

	return report
}
