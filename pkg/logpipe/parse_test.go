package logpipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLineJSONObject(t *testing.T) {
	entry := ParseLine(SourceContainerRuntime, `{"level":"warn","msg":"disk low","pct":92.5}`)

	assert.Equal(t, LevelWarn, entry.Level)
	assert.Equal(t, "disk low", entry.Message)
	assert.Equal(t, "92.5", entry.Fields["pct"])
}

func TestParseLineJSONNumericSeverity(t *testing.T) {
	entry := ParseLine(SourceLogStore, `{"severity":50,"message":"boom"}`)
	assert.Equal(t, LevelError, entry.Level)
}

func TestParseLinePlainTextInfersLevel(t *testing.T) {
	entry := ParseLine(SourceContainerRuntime, "2026-01-01T00:00:00Z ERROR connection refused")
	assert.Equal(t, LevelError, entry.Level)
	assert.Equal(t, "2026-01-01T00:00:00Z ERROR connection refused", entry.Message)
}

func TestParseLineDefaultsToInfo(t *testing.T) {
	entry := ParseLine(SourceContainerRuntime, "server listening on :8080")
	assert.Equal(t, LevelInfo, entry.Level)
}

func TestSplitRuntimeLine(t *testing.T) {
	ts, rest := SplitRuntimeLine("2026-01-01T00:00:00.000000000Z web-1|hello")
	assert.False(t, ts.IsZero())
	assert.Equal(t, "web-1|hello", rest)
}

func TestSplitRuntimeLineUnparseableTimestamp(t *testing.T) {
	ts, rest := SplitRuntimeLine("not-a-timestamp rest of line")
	assert.True(t, ts.IsZero())
	assert.Equal(t, "not-a-timestamp rest of line", rest)
}

func TestSplitServicePrefixWithOrdinal(t *testing.T) {
	service, instance, payload := SplitServicePrefix("web-2|hello world")
	assert.Equal(t, "web", service)
	assert.Equal(t, "2", instance)
	assert.Equal(t, "hello world", payload)
}

func TestSplitServicePrefixWithoutDelimiter(t *testing.T) {
	service, instance, payload := SplitServicePrefix("no delimiter here")
	assert.Empty(t, service)
	assert.Empty(t, instance)
	assert.Equal(t, "no delimiter here", payload)
}
