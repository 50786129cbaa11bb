package paths

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveInto(t *testing.T, root string) *Paths {
	t.Helper()
	t.Setenv(envStateRoot, root)
	p, err := Resolve()
	require.NoError(t, err)
	return p
}

func TestAcquireFreshRootWritesPid(t *testing.T) {
	p := resolveInto(t, t.TempDir())

	result, err := p.Acquire()
	require.NoError(t, err)
	assert.False(t, result.Stale)

	pid, err := p.ReadPid()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireDetectsStalePidNotRunning(t *testing.T) {
	p := resolveInto(t, t.TempDir())
	require.NoError(t, p.WritePid(999999999))

	result, err := p.Acquire()
	require.NoError(t, err)
	assert.True(t, result.Stale)
	assert.Equal(t, "pid-not-running", result.StaleReason)
}

func TestAcquireFailsWhenAlreadyRunning(t *testing.T) {
	p := resolveInto(t, t.TempDir())
	require.NoError(t, p.WritePid(os.Getpid()))

	_, err := p.Acquire()
	require.Error(t, err)
}

func TestReleaseRemovesPidAndSocket(t *testing.T) {
	p := resolveInto(t, t.TempDir())
	require.NoError(t, p.WritePid(os.Getpid()))

	p.Release()

	pid, err := p.ReadPid()
	require.NoError(t, err)
	assert.Equal(t, 0, pid)
}

func TestProcessAliveForCurrentProcess(t *testing.T) {
	assert.True(t, ProcessAlive(os.Getpid()))
}

func TestProcessAliveFalseForBogusPid(t *testing.T) {
	assert.False(t, ProcessAlive(999999999))
}

func TestProcessMatchesBinaryForCurrentProcess(t *testing.T) {
	assert.True(t, ProcessMatchesBinary(os.Getpid()))
}
