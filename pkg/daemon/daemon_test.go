package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hack-dance/hackd/pkg/registry"
	"github.com/hack-dance/hackd/pkg/status"
	"github.com/hack-dance/hackd/pkg/tokens"
)

func newTestServer(t *testing.T) (*Server, *registry.Store, *tokens.Store) {
	t.Helper()
	dir := t.TempDir()

	reg, err := registry.Open(filepath.Join(dir, "registry.json"), nil)
	require.NoError(t, err)
	tok, err := tokens.Open(filepath.Join(dir, "tokens.json"), nil)
	require.NoError(t, err)

	srv := New(Deps{
		Registry:   reg,
		Tokens:     tok,
		DaemonInfo: func() status.DaemonInfo { return status.DaemonInfo{} },
	})
	return srv, reg, tok
}

func udsClient(socketPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 2 * time.Second,
	}
}

func serveUDS(t *testing.T, srv *Server) (string, func()) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "hackd.sock")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.ServeUDS(ctx, socketPath)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := net.Dial("unix", socketPath); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return socketPath, func() {
		cancel()
		<-done
	}
}

func TestUpsertProjectOverUDS(t *testing.T) {
	srv, _, _ := newTestServer(t)
	socketPath, stop := serveUDS(t, srv)
	defer stop()

	client := udsClient(socketPath)
	body, _ := json.Marshal(upsertProjectRequest{RepoRoot: "/repo/a", ProjectDir: "/repo/a", Name: "demo"})

	resp, err := client.Post("http://unix/v1/projects", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var got upsertProjectResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, registry.StatusInserted, got.Status)
	assert.Equal(t, "demo", got.Project.Name)
}

func TestListProjectsOverUDS(t *testing.T) {
	srv, reg, _ := newTestServer(t)
	_, err := reg.Upsert(registry.Context{RepoRoot: "/repo/a", ProjectDir: "/repo/a", Name: "demo"})
	require.NoError(t, err)

	socketPath, stop := serveUDS(t, srv)
	defer stop()

	resp, err := udsClient(socketPath).Get("http://unix/v1/projects")
	require.NoError(t, err)
	defer resp.Body.Close()

	var projects []*registry.Project
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&projects))
	assert.Len(t, projects, 1)
}

func TestMintAndRevokeTokenOverUDS(t *testing.T) {
	srv, _, _ := newTestServer(t)
	socketPath, stop := serveUDS(t, srv)
	defer stop()

	client := udsClient(socketPath)
	body, _ := json.Marshal(mintTokenRequest{Label: "laptop", Scope: "write"})
	resp, err := client.Post("http://unix/v1/tokens", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var minted mintTokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&minted))
	assert.NotEmpty(t, minted.Secret)

	req, err := http.NewRequest(http.MethodDelete, "http://unix/v1/tokens/"+minted.Record.ID, nil)
	require.NoError(t, err)
	delResp, err := client.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
}

func TestDeleteProjectRefusesPruneWhenDirStillExists(t *testing.T) {
	srv, reg, _ := newTestServer(t)
	liveDir := t.TempDir()
	result, err := reg.Upsert(registry.Context{RepoRoot: liveDir, ProjectDir: liveDir, Name: "live"})
	require.NoError(t, err)

	socketPath, stop := serveUDS(t, srv)
	defer stop()

	req, err := http.NewRequest(http.MethodDelete, "http://unix/v1/projects/"+result.Project.ID, nil)
	require.NoError(t, err)
	resp, err := udsClient(socketPath).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotNil(t, reg.ResolveByID(result.Project.ID), "project must survive a refused prune")
}

func TestDeleteProjectPrunesWhenDirAndComposeFileGone(t *testing.T) {
	srv, reg, _ := newTestServer(t)
	goneDir := filepath.Join(t.TempDir(), "does-not-exist")
	result, err := reg.Upsert(registry.Context{RepoRoot: goneDir, ProjectDir: goneDir, Name: "gone"})
	require.NoError(t, err)

	socketPath, stop := serveUDS(t, srv)
	defer stop()

	req, err := http.NewRequest(http.MethodDelete, "http://unix/v1/projects/"+result.Project.ID, nil)
	require.NoError(t, err)
	resp, err := udsClient(socketPath).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Nil(t, reg.ResolveByID(result.Project.ID))
}

func TestDeleteProjectUnknownIDReturnsNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	socketPath, stop := serveUDS(t, srv)
	defer stop()

	req, err := http.NewRequest(http.MethodDelete, "http://unix/v1/projects/prj_does_not_exist", nil)
	require.NoError(t, err)
	resp, err := udsClient(socketPath).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthGateRejectsMissingBearerTokenOnTCP(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		handler := srv.authGate(srv.mux)
		_ = http.Serve(ln, srv.wrap(handler))
	}()
	defer ln.Close()

	resp, err := http.Get("http://" + ln.Addr().String() + "/v1/projects")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthGateRejectsReadScopeForWrites(t *testing.T) {
	srv, _, tok := newTestServer(t)
	minted, err := tok.Mint(tokens.MintRequest{Label: "reader", Scope: tokens.ScopeRead})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		handler := srv.authGate(srv.mux)
		_ = http.Serve(ln, srv.wrap(handler))
	}()

	body, _ := json.Marshal(upsertProjectRequest{RepoRoot: "/repo/a", ProjectDir: "/repo/a"})
	req, err := http.NewRequest(http.MethodPost, "http://"+ln.Addr().String()+"/v1/projects", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+minted.Secret)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
