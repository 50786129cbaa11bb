package utils

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitLinesStripsCarriageReturnsAndTrailingNewline(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitLines("a\r\nb\n"))
	assert.Equal(t, []string{}, SplitLines(""))
	assert.Equal(t, []string{}, SplitLines("\n"))
	assert.Equal(t, []string{"a"}, SplitLines("a"))
}

func TestApplyTemplateSubstitutesFields(t *testing.T) {
	out := ApplyTemplate("hello {{.Name}}", struct{ Name string }{Name: "world"})
	assert.Equal(t, "hello world", out)
}

func TestFormatBinaryBytes(t *testing.T) {
	assert.Equal(t, "0B", FormatBinaryBytes(0))
	assert.Equal(t, "1KiB", FormatBinaryBytes(1024))
	assert.Equal(t, "1.5KiB", FormatBinaryBytes(1536))
}

func TestFormatDecimalBytes(t *testing.T) {
	assert.Equal(t, "1KB", FormatDecimalBytes(1000))
	assert.Equal(t, "1MB", FormatDecimalBytes(1000*1000))
}

func TestSafeTruncate(t *testing.T) {
	assert.Equal(t, "abc", SafeTruncate("abcdef", 3))
	assert.Equal(t, "abc", SafeTruncate("abc", 10))
}

func TestFormatMapSortsKeys(t *testing.T) {
	out := FormatMap(map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, "a: 1\nb: 2\n", out)
	assert.Equal(t, "none", FormatMap(nil))
}

type failingCloser struct{ err error }

func (f failingCloser) Close() error { return f.err }

func TestCloseManyAggregatesErrors(t *testing.T) {
	boom := errors.New("boom")
	err := CloseMany([]io.Closer{failingCloser{}, failingCloser{err: boom}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCloseManyNoErrorsReturnsNil(t *testing.T) {
	err := CloseMany([]io.Closer{failingCloser{}, failingCloser{}})
	assert.NoError(t, err)
}
