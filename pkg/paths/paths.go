// Package paths resolves the per-user state root and arbitrates exclusive
// ownership of the daemon's pidfile and socket (spec §4.A).
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/OpenPeeDeeP/xdg"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/hack-dance/hackd/pkg/apierrors"
)

const (
	envStateRoot = "HACK_STATE_ROOT"
	envSocket    = "HACK_DAEMON_SOCKET"
	defaultDir   = ".hack"
)

// Paths is the resolved set of well-known files under the state root.
type Paths struct {
	Root             string
	PidFile          string
	SocketPath       string
	LogFile          string
	RegistryFile     string
	TokensFile       string
	RuntimeCounters  string
	ExtensionsFile   string
	LaunchdPlistPath string
}

// Resolve computes Paths from the environment, creating the root directory
// if it does not already exist.
func Resolve() (*Paths, error) {
	root := os.Getenv(envStateRoot)
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			dirs := xdg.New("hack-dance", "hack")
			home = dirs.ConfigHome()
			root = home
		} else {
			root = filepath.Join(home, defaultDir)
		}
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		if os.IsPermission(err) {
			return nil, apierrors.New(apierrors.CodePermissionDenied, fmt.Sprintf("cannot create state root %s", root))
		}
		return nil, apierrors.Wrap(apierrors.CodeInternal, err)
	}

	p := &Paths{
		Root:             root,
		PidFile:          filepath.Join(root, "hackd.pid"),
		SocketPath:       filepath.Join(root, "hackd.sock"),
		LogFile:          filepath.Join(root, "hackd.log"),
		RegistryFile:     filepath.Join(root, "registry.json"),
		TokensFile:       filepath.Join(root, "tokens.json"),
		RuntimeCounters:  filepath.Join(root, "runtime-counters.json"),
		ExtensionsFile:   filepath.Join(root, "extensions.yml"),
		LaunchdPlistPath: filepath.Join(root, "hackd.plist"),
	}

	if sock := os.Getenv(envSocket); sock != "" {
		p.SocketPath = sock
	}

	return p, nil
}

// ProcessAlive reports whether pid refers to a live process, using a
// zero-signal probe the way the teacher probes socket candidates before
// trusting them.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.ESRCH {
		return false
	}
	// EPERM means the process exists but we can't signal it - still alive.
	return err == syscall.EPERM
}

// ProcessMatchesBinary reports whether pid's executable matches the
// currently running daemon binary, guarding against a reused pid (§8: "the
// server additionally verifies that the process command line matches the
// daemon binary when available"). Returns true when the check cannot be
// performed, so a positive liveness probe is still honored by default.
func ProcessMatchesBinary(pid int) bool {
	self, err := os.Executable()
	if err != nil {
		return true
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return true
	}
	exe, err := proc.Exe()
	if err != nil {
		return true
	}
	return exe == self
}

// ReadPid reads the pidfile's contents, returning 0, nil if the file is
// absent.
func (p *Paths) ReadPid() (int, error) {
	data, err := os.ReadFile(p.PidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, nil
	}
	return pid, nil
}

// WritePid atomically writes pid to the pidfile.
func (p *Paths) WritePid(pid int) error {
	tmp := p.PidFile + ".tmp"
	if err := os.WriteFile(tmp, []byte(fmt.Sprintf("%d\n", pid)), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.PidFile)
}

// SocketExists reports whether a socket file is present at SocketPath.
func (p *Paths) SocketExists() bool {
	info, err := os.Stat(p.SocketPath)
	return err == nil && (info.Mode()&os.ModeSocket) != 0
}

// AcquireResult describes the outcome of attempting exclusivity.
type AcquireResult struct {
	Stale       bool
	StaleReason string
}

// Acquire claims the pidfile/socket for the current process, per §4.A: a
// pre-existing pidfile referencing a dead process is stale and cleared; one
// referencing a live process fails with AlreadyRunning.
func (p *Paths) Acquire() (*AcquireResult, error) {
	pid, err := p.ReadPid()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, err)
	}

	result := &AcquireResult{}

	switch {
	case pid != 0 && ProcessAlive(pid) && ProcessMatchesBinary(pid):
		return nil, apierrors.New(apierrors.CodeAlreadyRunning, fmt.Sprintf("daemon already running (pid %d)", pid))
	case pid != 0 && ProcessAlive(pid):
		result.Stale = true
		result.StaleReason = "pid-reused"
	case pid != 0:
		result.Stale = true
		result.StaleReason = "pid-not-running"
	case p.SocketExists():
		result.Stale = true
		result.StaleReason = "socket-only"
	}

	if result.Stale {
		if err := p.ClearStale(); err != nil {
			return nil, err
		}
	}

	if err := p.WritePid(os.Getpid()); err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, err)
	}

	return result, nil
}

// ClearStale removes the pidfile and socket only when no live process holds
// them; it is idempotent and safe to call when they are already absent.
func (p *Paths) ClearStale() error {
	pid, err := p.ReadPid()
	if err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}
	if pid != 0 && ProcessAlive(pid) && ProcessMatchesBinary(pid) {
		return apierrors.New(apierrors.CodeAlreadyRunning, fmt.Sprintf("refusing to clear state held by live pid %d", pid))
	}

	for _, f := range []string{p.PidFile, p.SocketPath} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return apierrors.Wrap(apierrors.CodeInternal, err)
		}
	}
	return nil
}

// Release removes the pidfile and socket unconditionally; called on
// graceful stop once the listener is closed.
func (p *Paths) Release() {
	_ = os.Remove(p.PidFile)
	_ = os.Remove(p.SocketPath)
}
