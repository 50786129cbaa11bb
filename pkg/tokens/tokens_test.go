package tokens

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")
	s, err := Open(path, nil)
	require.NoError(t, err)
	return s, path
}

func TestMintThenVerify(t *testing.T) {
	s, _ := openTestStore(t)

	minted, err := s.Mint(MintRequest{Label: "laptop", Scope: ScopeRead})
	require.NoError(t, err)
	require.NotEmpty(t, minted.Secret)

	found, ok := s.Verify(minted.Secret)
	require.True(t, ok)
	assert.Equal(t, minted.Record.ID, found.ID)
	assert.Equal(t, ScopeRead, found.Scope)
}

func TestVerifyRejectsUnknownSecret(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.Mint(MintRequest{Label: "laptop"})
	require.NoError(t, err)

	_, ok := s.Verify("not-a-real-secret")
	assert.False(t, ok)
}

func TestMintSameLabelRevokesPrior(t *testing.T) {
	s, _ := openTestStore(t)

	first, err := s.Mint(MintRequest{Label: "ci", Scope: ScopeWrite, ProjectID: "prj_1"})
	require.NoError(t, err)

	second, err := s.Mint(MintRequest{Label: "ci", Scope: ScopeWrite, ProjectID: "prj_1"})
	require.NoError(t, err)

	_, ok := s.Verify(first.Secret)
	assert.False(t, ok, "prior token for the same label must be revoked")

	found, ok := s.Verify(second.Secret)
	require.True(t, ok)
	assert.Equal(t, second.Record.ID, found.ID)
}

func TestVerifyIgnoresRevokedTokens(t *testing.T) {
	s, _ := openTestStore(t)
	minted, err := s.Mint(MintRequest{Label: "x"})
	require.NoError(t, err)

	require.NoError(t, s.Revoke(minted.Record.ID))

	_, ok := s.Verify(minted.Secret)
	assert.False(t, ok)
}

func TestRevokeUnknownIDReturnsUnknownToken(t *testing.T) {
	s, _ := openTestStore(t)
	err := s.Revoke("tok_does_not_exist")
	require.Error(t, err)
}

func TestRevokeIsIdempotent(t *testing.T) {
	s, _ := openTestStore(t)
	minted, err := s.Mint(MintRequest{Label: "x"})
	require.NoError(t, err)

	require.NoError(t, s.Revoke(minted.Record.ID))
	require.NoError(t, s.Revoke(minted.Record.ID))
}

func TestMintRejectsInvalidScope(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.Mint(MintRequest{Scope: "admin"})
	require.Error(t, err)
}

func TestListNeverLeaksSecrets(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.Mint(MintRequest{Label: "a"})
	require.NoError(t, err)

	data, err := os.ReadFile(s.path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\"secret\"")
}

func TestListIsOldestFirst(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.Mint(MintRequest{Label: "first"})
	require.NoError(t, err)
	_, err = s.Mint(MintRequest{Label: "second"})
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 2)
	assert.True(t, list[0].CreatedAt.Before(list[1].CreatedAt) || list[0].CreatedAt.Equal(list[1].CreatedAt))
}
