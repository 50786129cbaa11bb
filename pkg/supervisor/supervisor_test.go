package supervisor

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hack-dance/hackd/pkg/paths"
)

func testPaths(t *testing.T) *paths.Paths {
	t.Helper()
	t.Setenv("HACK_STATE_ROOT", t.TempDir())
	p, err := paths.Resolve()
	require.NoError(t, err)
	return p
}

func TestStatusStoppedOnFreshRoot(t *testing.T) {
	p := testPaths(t)
	sup := New(p, nil)

	report := sup.Status(context.Background())
	assert.Equal(t, ReadinessStopped, report.Status)
	assert.False(t, report.ProcessRunning)
	assert.False(t, report.SocketExists)
}

func TestStatusStaleWhenPidFileReferencesDeadProcess(t *testing.T) {
	p := testPaths(t)
	require.NoError(t, p.WritePid(999999999))
	sup := New(p, nil)

	report := sup.Status(context.Background())
	assert.Equal(t, ReadinessStale, report.Status)
	assert.Equal(t, "pid-not-running", report.StaleReason)
}

func TestStatusStaleWhenSocketExistsButNoProcess(t *testing.T) {
	p := testPaths(t)
	ln, err := net.Listen("unix", p.SocketPath)
	require.NoError(t, err)
	defer ln.Close()

	sup := New(p, nil)
	report := sup.Status(context.Background())
	assert.Equal(t, ReadinessStale, report.Status)
	assert.Equal(t, "socket-only", report.StaleReason)
}

func TestStopOnAlreadyStoppedDaemonIsNoop(t *testing.T) {
	p := testPaths(t)
	sup := New(p, nil)
	assert.NoError(t, sup.Stop(context.Background()))
}

func TestInstallRejectedOnNonDarwin(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("darwin install is expected to succeed, covered by a separate path")
	}
	p := testPaths(t)
	sup := New(p, nil)
	err := sup.Install(filepath.Join(t.TempDir(), "hackd.plist"), "/usr/local/bin/hackd")
	require.Error(t, err)
}

func TestInstallWritesPlistOnDarwin(t *testing.T) {
	if runtime.GOOS != "darwin" {
		t.Skip("darwin only")
	}
	p := testPaths(t)
	sup := New(p, nil)
	plistPath := filepath.Join(t.TempDir(), "hackd.plist")
	require.NoError(t, sup.Install(plistPath, "/usr/local/bin/hackd"))

	content, err := os.ReadFile(plistPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "/usr/local/bin/hackd")
}
