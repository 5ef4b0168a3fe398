package proxy

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/process"
	"github.com/viant/jsonrpc/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// echoServerConfig spawns a tiny Python responder that answers "initialize"
// with a fixed handshake result and every other request by echoing an empty
// result under the same id, mirroring the spec's literal echo subprocess.
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
        result = {"protocolVersion": "2025-03-26", "capabilities": {"tools": True}, "serverInfo": {"name": "echo", "version": "1.0.0"}}
    else:
        result = {}
    resp = {"jsonrpc": "2.0", "id": req["id"], "result": result}
    sys.stdout.write(json.dumps(resp) + "\n")
    sys.stdout.flush()
`
	return process.ServerConfig{Name: name, Command: "python3", Args: []string{"-u", "-c", script}}
}

func newTestProxy(t *testing.T, endpoint string) (*Proxy, func()) {
	t.Helper()
	sup := process.NewSupervisor(process.DefaultOptions(), nil)
	reg := registry.New(registry.DefaultOptions(), nil, func(s *registry.Session) {
		_ = sup.Kill(s.HandleId)
	})
	servers := map[string]process.ServerConfig{endpoint: echoServerConfig("echo")}
	p := New(sup, reg, servers, Config{RequestTimeout: 5 * time.Second, BatchTimeout: 2 * time.Second}, nil)
	p.Start()
	return p, func() {
		p.Stop()
		sup.KillAll()
	}
}

func TestProxy_InitializeRoundTrip(t *testing.T) {
	p, cleanup := newTestProxy(t, "/echo")
	defer cleanup()

	req := &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Method: "initialize", Id: "i1"}
	resp, sessionID, err := p.HandleRequest(context.Background(), "", jsonrpc.NewRequestMessage(req), "/echo")
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.NotEmpty(t, sessionID)
	assert.Equal(t, "i1", resp.Id)
	require.Nil(t, resp.Error)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	serverInfo := result["serverInfo"].(map[string]interface{})
	assert.Equal(t, "echo", serverInfo["name"])
}

func TestProxy_SessionScopedCall(t *testing.T) {
	p, cleanup := newTestProxy(t, "/echo")
	defer cleanup()

	initReq := &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Method: "initialize", Id: "i1"}
	_, sessionID, err := p.HandleRequest(context.Background(), "", jsonrpc.NewRequestMessage(initReq), "/echo")
	require.NoError(t, err)

	listReq := &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Method: "tools/list", Id: "t1"}
	resp, _, err := p.HandleRequest(context.Background(), sessionID, jsonrpc.NewRequestMessage(listReq), "/echo")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "t1", resp.Id)
}

func TestProxy_UnknownSessionYieldsSessionNotFound(t *testing.T) {
	p, cleanup := newTestProxy(t, "/echo")
	defer cleanup()

	req := &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Method: "tools/list", Id: "t1"}
	resp, _, err := p.HandleRequest(context.Background(), "bogus-session", jsonrpc.NewRequestMessage(req), "/echo")
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.SessionNotFound, resp.Error.Code)
}

func TestProxy_Batch(t *testing.T) {
	p, cleanup := newTestProxy(t, "/echo")
	defer cleanup()

	initReq := &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Method: "initialize", Id: "i1"}
	initMsg := jsonrpc.NewRequestMessage(initReq)
	notif := &jsonrpc.Notification{Jsonrpc: jsonrpc.Version, Method: "notifications/initialized"}
	notifMsg := jsonrpc.NewNotificationMessage(notif)

	batch := jsonrpc.BatchRequest{initMsg, notifMsg}
	responses := p.HandleBatch(context.Background(), "", batch, "/echo")
	require.Len(t, responses, 1)
	assert.Equal(t, "i1", responses[0].Id)
}
