package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/process"
	"github.com/viant/jsonrpc/proxy"
	"github.com/viant/jsonrpc/registry"
	"github.com/viant/jsonrpc/transport/sse"
)

const sseKeepaliveInterval = 30 * time.Second

// Server is the HTTP Front-End: one ServeMux entry per configured MCP
// server, plus the fixed /health and /stats endpoints.
type Server struct {
	mux      *http.ServeMux
	proxy    *proxy.Proxy
	registry *registry.Registry
	logger   jsonrpc.Logger
	cors     CORSConfig
	auth     AuthConfig
}

// Deps bundles the Server's collaborators.
type Deps struct {
	Proxy      *proxy.Proxy
	Registry   *registry.Registry
	Servers    map[string]process.ServerConfig // endpoint -> config
	Logger     jsonrpc.Logger
	CORS       CORSConfig
	Auth       AuthConfig
	MetricsMux http.Handler // optional, mounted at /metrics
}

// NewServer builds the routed http.Handler described by the spec's
// endpoint layout: one path per ServerConfig, a /mcp alias when there is
// exactly one, and /health + /stats.
func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = jsonrpc.DefaultLogger
	}
	s := &Server{
		mux:      http.NewServeMux(),
		proxy:    d.Proxy,
		registry: d.Registry,
		logger:   logger,
		cors:     d.CORS,
		auth:     d.Auth,
	}

	for endpoint := range d.Servers {
		s.mux.HandleFunc(endpoint, s.mcpHandler(endpoint))
	}
	if len(d.Servers) == 1 {
		for endpoint := range d.Servers {
			s.mux.HandleFunc("/mcp", s.mcpHandler(endpoint))
		}
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/stats", s.handleStats)
	if d.MetricsMux != nil {
		s.mux.Handle("/metrics", d.MetricsMux)
	}
	return s
}

// Handler wraps the router with the auth and CORS middleware, outermost
// first: CORS decides header exposure before auth can reject.
func (s *Server) Handler() http.Handler {
	return CORS(s.cors, RequireBearer(s.auth, s.mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.registry.Stats()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(st)
}

func (s *Server) mcpHandler(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			s.handlePOST(w, r, endpoint)
		case http.MethodGet:
			s.handleGET(w, r)
		case http.MethodDelete:
			s.handleDELETE(w, r)
		default:
			w.Header().Set("Allow", "POST, GET, DELETE")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) handlePOST(w http.ResponseWriter, r *http.Request, endpoint string) {
	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
		return
	}
	if !acceptsOneOf(r.Header, "application/json", sseMimeType, "*/*") {
		http.Error(w, "not acceptable", http.StatusNotAcceptable)
		return
	}

	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	sessionID := r.Header.Get(jsonrpc.SessionHeader)

	if looksLikeBatch(body) {
		s.handleBatchPOST(w, r, body, sessionID, endpoint)
		return
	}
	s.handleSinglePOST(w, r, body, sessionID, endpoint)
}

func (s *Server) handleSinglePOST(w http.ResponseWriter, r *http.Request, body []byte, sessionID, endpoint string) {
	msg, err := jsonrpc.Parse(body)
	if err != nil {
		writeJSONRPCError(w, http.StatusBadRequest, jsonrpc.NewParsingError(nil, err, body))
		return
	}

	resp, resolvedSessionID, err := s.proxy.HandleRequest(r.Context(), sessionID, msg, endpoint)
	if err != nil {
		s.logger.Errorf("httpapi: handleRequest on %s: %v", endpoint, err)
		writeJSONRPCError(w, http.StatusInternalServerError, jsonrpc.NewServerError(nil, err))
		return
	}

	if resp == nil {
		if resolvedSessionID != "" {
			w.Header().Set(jsonrpc.SessionHeader, resolvedSessionID)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if acceptsOneOf(r.Header, sseMimeType) {
		s.writeSingleSSEResponse(w, resolvedSessionID, resp)
		return
	}

	if resolvedSessionID != "" {
		w.Header().Set(jsonrpc.SessionHeader, resolvedSessionID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleBatchPOST(w http.ResponseWriter, r *http.Request, body []byte, sessionID, endpoint string) {
	var batch jsonrpc.BatchRequest
	if err := json.Unmarshal(body, &batch); err != nil {
		writeJSONRPCError(w, http.StatusBadRequest, jsonrpc.NewParsingError(nil, err, body))
		return
	}

	responses := s.proxy.HandleBatch(r.Context(), sessionID, batch, endpoint)
	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(responses)
}

func (s *Server) writeSingleSSEResponse(w http.ResponseWriter, sessionID string, resp *jsonrpc.Response) {
	setSSEHeaders(w)
	if sessionID != "" {
		w.Header().Set(jsonrpc.SessionHeader, sessionID)
	}
	w.WriteHeader(http.StatusOK)
	fw := newFlushWriter(w)
	framer := sse.NewFramer()
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	frame, _ := framer.Frame("message", payload)
	_, _ = fw.Write(frame)
}

func (s *Server) handleGET(w http.ResponseWriter, r *http.Request) {
	if !acceptsOneOf(r.Header, sseMimeType) {
		http.Error(w, "not acceptable", http.StatusNotAcceptable)
		return
	}
	sessionID := r.Header.Get(jsonrpc.SessionHeader)
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	fw := newFlushWriter(w)
	_, _ = fw.Write(sse.Comment("ok"))

	sink := newSSESink(fw)
	detach := sess.Attach(sink)
	defer detach()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			return
		case <-keepalive.C:
			if _, err := fw.Write(sse.Comment("keepalive")); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleDELETE(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(jsonrpc.SessionHeader)
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	s.registry.Destroy(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// Shutdown stops the HTTP listener gracefully via httpSrv.Shutdown. It does
// not destroy sessions: callers call registry.DestroyAll afterwards to tear
// down subprocesses.
func (s *Server) Shutdown(ctx context.Context, httpSrv *http.Server) error {
	return httpSrv.Shutdown(ctx)
}

const sseMimeType = "text/event-stream"

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", sseMimeType)
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func hasJSONContentType(v string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(v)), "application/json")
}

func acceptsOneOf(hdr http.Header, types ...string) bool {
	values := hdr.Values("Accept")
	if len(values) == 0 {
		return true
	}
	for _, v := range values {
		for _, t := range types {
			if strings.Contains(v, t) {
				return true
			}
		}
	}
	return false
}

func looksLikeBatch(body []byte) bool {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

func writeJSONRPCError(w http.ResponseWriter, status int, resp *jsonrpc.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
