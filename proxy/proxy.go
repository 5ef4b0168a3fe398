// Package proxy is the correlation and routing brain mediating between
// HTTP-side requests and subprocess-side stdin/stdout.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/process"
	"github.com/viant/jsonrpc/registry"
)

// ErrUnknownEndpoint is returned when an initialize request targets an
// endpoint with no bound ServerConfig.
var ErrUnknownEndpoint = errors.New("proxy: unknown endpoint")

// Config bounds the proxy's correlation waits.
type Config struct {
	RequestTimeout time.Duration
	BatchTimeout   time.Duration
}

// DefaultConfig matches the spec's documented defaults.
func DefaultConfig() Config {
	return Config{RequestTimeout: 30 * time.Second, BatchTimeout: 5 * time.Second}
}

// MetricsRecorder receives correlation and subprocess lifecycle events.
// Implemented by *metrics.Collectors; kept as a small interface here so
// this package does not import the metrics package directly.
type MetricsRecorder interface {
	SubprocessRestart()
	SubprocessCrashed()
	ObserveCorrelationLatency(d time.Duration)
}

// Proxy mediates handshake, request/response correlation, and
// server-initiated message fan-out between the HTTP front-end, the session
// registry, and the process supervisor.
type Proxy struct {
	supervisor *process.Supervisor
	registry   *registry.Registry
	servers    map[string]process.ServerConfig
	cfg        Config
	logger     jsonrpc.Logger
	waiters    *waiters
	metrics    MetricsRecorder

	stop chan struct{}
}

// SetMetrics attaches a MetricsRecorder; nil disables recording (the
// default), so constructing a Proxy never requires a metrics dependency.
func (p *Proxy) SetMetrics(m MetricsRecorder) {
	p.metrics = m
}

// New constructs a Proxy. servers maps HTTP endpoint path to its
// ServerConfig.
func New(sup *process.Supervisor, reg *registry.Registry, servers map[string]process.ServerConfig, cfg Config, logger jsonrpc.Logger) *Proxy {
	if logger == nil {
		logger = jsonrpc.DefaultLogger
	}
	return &Proxy{
		supervisor: sup,
		registry:   reg,
		servers:    servers,
		cfg:        cfg,
		logger:     logger,
		waiters:    newWaiters(),
		stop:       make(chan struct{}),
	}
}

// Start launches the correlation loop that consumes supervisor events.
// It must be called once before HandleRequest/HandleBatch are used.
func (p *Proxy) Start() {
	go p.correlate()
}

// Stop ends the correlation loop.
func (p *Proxy) Stop() {
	close(p.stop)
}

func (p *Proxy) correlate() {
	for {
		select {
		case <-p.stop:
			return
		case ev, ok := <-p.supervisor.Events():
			if !ok {
				return
			}
			p.handleEvent(ev)
		}
	}
}

func (p *Proxy) handleEvent(ev process.Event) {
	switch ev.Kind {
	case process.EventStdout:
		p.handleStdout(ev)
	case process.EventStderr:
		p.logger.Errorf("subprocess %s stderr: %s", ev.HandleId, string(ev.Line))
	case process.EventCrashed:
		p.handleCrash(ev)
	case process.EventRestarted:
		if p.metrics != nil {
			p.metrics.SubprocessRestart()
		}
	}
}

func (p *Proxy) handleStdout(ev process.Event) {
	sess, ok := p.registry.BySubprocessHandle(ev.HandleId)
	if !ok {
		p.logger.Errorf("proxy: stdout from unbound handle %s", ev.HandleId)
		return
	}
	msg, err := jsonrpc.Parse(ev.Line)
	if err != nil {
		p.logger.Errorf("proxy: malformed subprocess message on %s: %v", ev.HandleId, err)
		return
	}
	var resp *jsonrpc.Response
	switch msg.Type {
	case jsonrpc.MessageTypeResponse:
		resp = msg.JsonRpcResponse
	case jsonrpc.MessageTypeError:
		resp = msg.JsonRpcError
	default:
		// requests/notifications originated by the subprocess have no
		// correlated waiter; they are always server-initiated messages.
		sess.Deliver(ev.Line)
		return
	}
	if resp != nil && p.waiters.complete(sess.Id, resp) {
		return
	}
	sess.Deliver(ev.Line)
}

func (p *Proxy) handleCrash(ev process.Event) {
	sess, ok := p.registry.BySubprocessHandle(ev.HandleId)
	if !ok {
		return
	}
	p.waiters.failAllForSession(sess.Id, jsonrpc.NewProcessCrashed(nil, sess.Id, ev.Err))
	if ev.Exhausted {
		if p.metrics != nil {
			p.metrics.SubprocessCrashed()
		}
		p.registry.Destroy(sess.Id)
	}
}

// HandleRequest mediates a single JSON-RPC request or notification.
// sessionID is empty for the initialize handshake. It returns the response
// to write back (nil for notifications and orphaned responses) and the
// session id that should be echoed on the Mcp-Session-Id header (empty if
// none applies).
func (p *Proxy) HandleRequest(ctx context.Context, sessionID string, msg *jsonrpc.Message, serverEndpoint string) (*jsonrpc.Response, string, error) {
	if jsonrpc.IsInitialize(msg) {
		return p.handleInitialize(ctx, sessionID, msg, serverEndpoint)
	}

	if sessionID == "" {
		if !jsonrpc.NeedsResponse(msg) {
			return nil, "", nil
		}
		return jsonrpc.NewSessionNotFound(msg.JsonRpcRequest.Id, ""), "", nil
	}

	sess, err := p.registry.Get(sessionID)
	if err != nil {
		if !jsonrpc.NeedsResponse(msg) {
			return nil, "", nil
		}
		return jsonrpc.NewSessionNotFound(msg.JsonRpcRequest.Id, sessionID), sessionID, nil
	}

	return p.forward(ctx, sess, msg)
}

func (p *Proxy) handleInitialize(ctx context.Context, sessionID string, msg *jsonrpc.Message, serverEndpoint string) (*jsonrpc.Response, string, error) {
	req := msg.JsonRpcRequest
	if sessionID != "" {
		return jsonrpc.NewInvalidRequest(req.Id, errors.New("initialize must not include a session id"), nil), "", nil
	}
	cfg, ok := p.servers[serverEndpoint]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownEndpoint, serverEndpoint)
	}

	sess, err := p.registry.Create(cfg)
	if err != nil {
		return jsonrpc.NewServerError(req.Id, err), "", nil
	}

	handleId := registry.HandleIdFor(sess.Id)
	if _, err := p.supervisor.Spawn(handleId, cfg); err != nil {
		p.registry.Destroy(sess.Id)
		return jsonrpc.NewProcessCrashed(req.Id, sess.Id, err), "", nil
	}
	p.registry.BindHandle(sess, handleId)

	resp, _, err := p.forward(ctx, sess, msg)
	if err != nil {
		return nil, "", err
	}
	if resp != nil && resp.Error == nil {
		sess.MarkInitialized()
	}
	return resp, sess.Id, nil
}

func (p *Proxy) forward(ctx context.Context, sess *registry.Session, msg *jsonrpc.Message) (*jsonrpc.Response, string, error) {
	var id jsonrpc.RequestId
	needsResponse := jsonrpc.NeedsResponse(msg)
	if needsResponse {
		id = msg.JsonRpcRequest.Id
	}

	data, err := json.Marshal(msg)
	if err != nil {
		if needsResponse {
			return jsonrpc.NewInternalError(id, err, nil), sess.Id, nil
		}
		return nil, sess.Id, nil
	}

	if !needsResponse {
		if err := p.supervisor.Write(sess.HandleId, data); err != nil {
			p.logger.Errorf("proxy: write notification to %s: %v", sess.HandleId, err)
		}
		return nil, sess.Id, nil
	}

	ch, cancel := p.waiters.register(sess.Id, id)
	defer cancel()

	if err := p.supervisor.Write(sess.HandleId, data); err != nil {
		return jsonrpc.NewProcessCrashed(id, sess.Id, err), sess.Id, nil
	}

	start := time.Now()
	timeout := p.cfg.RequestTimeout
	select {
	case resp := <-ch:
		if p.metrics != nil {
			p.metrics.ObserveCorrelationLatency(time.Since(start))
		}
		return resp, sess.Id, nil
	case <-time.After(timeout):
		return jsonrpc.NewInternalError(id, errors.New("timed out waiting for correlated response"), nil), sess.Id, nil
	case <-ctx.Done():
		return jsonrpc.NewInternalError(id, ctx.Err(), nil), sess.Id, nil
	}
}

// HandleBatch processes each message with HandleRequest, preserving input
// order, collecting only non-null responses. The batch-level deadline is
// cfg.BatchTimeout; on expiry, partial results are returned.
func (p *Proxy) HandleBatch(ctx context.Context, sessionID string, batch jsonrpc.BatchRequest, serverEndpoint string) jsonrpc.BatchResponse {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.BatchTimeout)
	defer cancel()

	responses := make(jsonrpc.BatchResponse, 0, len(batch))
	current := sessionID
	for _, msg := range batch {
		resp, resolvedSessionID, err := p.HandleRequest(ctx, current, msg, serverEndpoint)
		if err != nil {
			p.logger.Errorf("proxy: batch element failed: %v", err)
			continue
		}
		if resolvedSessionID != "" {
			current = resolvedSessionID
		}
		if resp == nil {
			continue
		}
		responses = append(responses, resp)
		if ctx.Err() != nil {
			break
		}
	}
	return responses
}
