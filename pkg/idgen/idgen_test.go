package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewHasPrefixAndIsUnique(t *testing.T) {
	a := New("prj")
	b := New("prj")

	assert.True(t, strings.HasPrefix(a, "prj_"))
	assert.NotEqual(t, a, b)
}

func TestNewDifferentPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(New("tok"), "tok_"))
}
