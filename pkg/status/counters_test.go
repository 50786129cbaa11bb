package status

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveIncrementsResetCountOnRecovery(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenCounters(filepath.Join(dir, "runtime-counters.json"))
	require.NoError(t, err)

	t0 := time.Now().UTC()
	section := c.Observe(false, t0)
	assert.False(t, section.OK)
	assert.Equal(t, 0, section.ResetCount)

	t1 := t0.Add(time.Second)
	section = c.Observe(true, t1)
	assert.True(t, section.OK)
	assert.Equal(t, 1, section.ResetCount)
	require.NotNil(t, section.ResetAt)
	assert.True(t, section.ResetAt.Equal(t1))

	// staying ok doesn't bump the counter again.
	t2 := t1.Add(time.Second)
	section = c.Observe(true, t2)
	assert.Equal(t, 1, section.ResetCount)
	require.NotNil(t, section.LastOkAt)
	assert.True(t, section.LastOkAt.Equal(t2))
}

func TestCountersPersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime-counters.json")

	c, err := OpenCounters(path)
	require.NoError(t, err)
	c.Observe(false, time.Now().UTC())
	c.Observe(true, time.Now().UTC())

	reopened, err := OpenCounters(path)
	require.NoError(t, err)
	section := reopened.Observe(true, time.Now().UTC())
	assert.Equal(t, 1, section.ResetCount)
}
