package apierrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesCode(t *testing.T) {
	err := New(CodeUnknownProject, "no such project")
	assert.True(t, Is(err, CodeUnknownProject))
	assert.False(t, Is(err, CodeInternal))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(CodeInternal, cause)

	assert.Equal(t, CodeInternal, CodeOf(wrapped))
	assert.ErrorIs(t, wrapped, cause)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(CodeInternal, nil))
}

func TestCodeOfDefaultsToInternalForPlainErrors(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestWithDetailsDoesNotMutateOriginal(t *testing.T) {
	base := New(CodeInvalidScope, "bad scope")
	withDetails := base.WithDetails(map[string]any{"scope": "admin"})

	assert.Nil(t, base.Details)
	assert.Equal(t, "admin", withDetails.Details["scope"])
}

func TestErrorFormatsCodeAndMessage(t *testing.T) {
	err := New(CodeTimeout, "exceeded 5s")
	assert.Equal(t, "timeout: exceeded 5s", err.Error())
	assert.Contains(t, fmt.Sprintf("%+v", err), "timeout")
}

func TestWrapStackNilReturnsNil(t *testing.T) {
	assert.Nil(t, WrapStack(nil))
}

func TestStackOfReturnsTraceForWrapStackError(t *testing.T) {
	err := WrapStack(errors.New("boom"))
	stack := StackOf(err)
	assert.NotEmpty(t, stack)
	assert.Contains(t, stack, "boom")
}

func TestStackOfEmptyForUnrelatedError(t *testing.T) {
	assert.Equal(t, "", StackOf(errors.New("plain")))
}
