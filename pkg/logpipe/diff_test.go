package logpipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffAppendOnly(t *testing.T) {
	prev := []string{"a", "b"}
	next := []string{"a", "b", "c", "d"}
	assert.Equal(t, []string{"c", "d"}, Diff(prev, next))
}

func TestDiffNoChange(t *testing.T) {
	prev := []string{"a", "b"}
	assert.Empty(t, Diff(prev, prev))
}

func TestDiffRewindFallsBackToCommonPrefix(t *testing.T) {
	prev := []string{"a", "b", "c"}
	next := []string{"a", "x", "y"}
	assert.Equal(t, []string{"x", "y"}, Diff(prev, next))
}

func TestDiffEmptyPrev(t *testing.T) {
	next := []string{"a", "b"}
	assert.Equal(t, next, Diff(nil, next))
}

func TestSplitCapturedDropsTrailingNewline(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitCaptured("a\nb\n"))
	assert.Equal(t, []string{"a", "b"}, SplitCaptured("a\nb"))
}
