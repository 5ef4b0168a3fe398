package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/process"
	"github.com/viant/jsonrpc/proxy"
	"github.com/viant/jsonrpc/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func echoServerConfig(name string) process.ServerConfig {
	script := `
import sys, json
for line in sys.stdin:
    line = line.strip()
    if not line:
        continue
    req = json.loads(line)
    if "id" not in req:
        continue
    if req.get("method") == "initialize":
        result = {"protocolVersion": "2025-03-26", "capabilities": {}, "serverInfo": {"name": "echo", "version": "1.0.0"}}
    else:
        result = {}
    resp = {"jsonrpc": "2.0", "id": req["id"], "result": result}
    sys.stdout.write(json.dumps(resp) + "\n")
    sys.stdout.flush()
`
	return process.ServerConfig{Name: name, Command: "python3", Args: []string{"-u", "-c", script}, Endpoint: "/echo"}
}

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	sup := process.NewSupervisor(process.DefaultOptions(), nil)
	reg := registry.New(registry.DefaultOptions(), nil, func(s *registry.Session) {
		_ = sup.Kill(s.HandleId)
	})
	cfg := echoServerConfig("echo")
	servers := map[string]process.ServerConfig{"/echo": cfg}
	p := proxy.New(sup, reg, servers, proxy.Config{RequestTimeout: 5 * time.Second, BatchTimeout: 2 * time.Second}, nil)
	p.Start()

	srv := NewServer(Deps{
		Proxy:    p,
		Registry: reg,
		Servers:  servers,
		CORS:     CORSConfig{AllowedOrigins: []string{"https://example.com"}},
	})
	return srv, func() {
		p.Stop()
		sup.KillAll()
	}
}

func TestServer_InitializeOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/echo", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	sessionID := resp.Header.Get(jsonrpc.SessionHeader)
	assert.NotEmpty(t, sessionID)

	var decoded jsonrpc.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Nil(t, decoded.Error)
}

func TestServer_MissingContentType(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/echo", strings.NewReader(`{}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestServer_UnknownSessionYields404OnGet(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/echo", nil)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(jsonrpc.SessionHeader, "bogus")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_DeleteUnknownSessionStillNoContent(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/echo", nil)
	req.Header.Set(jsonrpc.SessionHeader, "bogus")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServer_MethodNotAllowedSetsAllowHeader(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/echo", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "POST, GET, DELETE", resp.Header.Get("Allow"))
}

func TestServer_Health(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_SSEAttachReceivesServerInitiatedMessage(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	initBody := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/echo", strings.NewReader(initBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	sessionID := resp.Header.Get(jsonrpc.SessionHeader)
	resp.Body.Close()
	require.NotEmpty(t, sessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	getReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/echo", nil)
	getReq.Header.Set("Accept", "text/event-stream")
	getReq.Header.Set(jsonrpc.SessionHeader, sessionID)

	getResp, err := http.DefaultClient.Do(getReq)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
	assert.Equal(t, "text/event-stream", getResp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(getResp.Body)
	require.True(t, scanner.Scan())
	assert.Equal(t, ": ok", scanner.Text())
}
