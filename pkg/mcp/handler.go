package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/consultpro/agents/pkg/audit"
	"github.com/consultpro/agents/pkg/jsonrpc"
	"github.com/consultpro/agents/pkg/telemetry"
)

const (
	MethodInitialize = "initialize"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
)

// Auditor records one exchange. Failures are reported but never fatal to the
// caller.
type Auditor interface {
	Log(ctx context.Context, agentType, message, response string, metadata any) error
}

type HandlerConfig struct {
	Executor  *Executor
	Audit     Auditor
	Logger    *slog.Logger
	KeepAlive time.Duration
	// Stream, when set, is mounted at /mcp/stream.
	Stream http.Handler
}

type Handler struct {
	router    chi.Router
	exec      *Executor
	audit     Auditor
	logger    *slog.Logger
	keepAlive time.Duration
	stream    http.Handler

	done      chan struct{}
	closeOnce sync.Once
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	h := &Handler{
		exec:      cfg.Executor,
		audit:     cfg.Audit,
		logger:    cfg.Logger,
		keepAlive: cfg.KeepAlive,
		stream:    cfg.Stream,
		done:      make(chan struct{}),
	}
	h.buildRouter()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) buildRouter() {
	r := chi.NewRouter()
	r.Get("/mcp/tools", h.handleListTools)
	r.Post("/mcp/tools/call", h.handleCallTool)
	r.With(h.recoverRPC).Post("/mcp/message", h.handleMessage)
	r.Get("/mcp/sse", h.handleSSE)
	r.Get("/mcp/ws", h.handleWebSocket)
	if h.stream != nil {
		r.Handle("/mcp/stream", h.stream)
		r.Handle("/mcp/stream/*", h.stream)
	}
	h.router = r
}

// Shutdown ends every open SSE and WebSocket stream.
func (h *Handler) Shutdown() {
	h.closeOnce.Do(func() { close(h.done) })
}

// recoverRPC turns a panic below it into a JSON-RPC internal error.
func (h *Handler) recoverRPC(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("mcp handler panic",
					slog.String("path", r.URL.Path),
					slog.String("err", fmt.Sprint(rec)),
				)
				h.writeRPC(w, jsonrpc.NewErrorResponse(nil, jsonrpc.CodeInternal, "Internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type toolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

type serverCapabilities struct {
	Tools toolsCapability `json:"tools"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    serverCapabilities `json:"capabilities"`
	ServerInfo      serverInfo         `json:"serverInfo"`
}

type toolList struct {
	Tools []Tool `json:"tools"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type initializedParams struct {
	ServerInfo   serverInfo         `json:"serverInfo"`
	Capabilities serverCapabilities `json:"capabilities"`
}

func defaultServerInfo() serverInfo {
	return serverInfo{Name: ServerName, Version: ServerVersion}
}

// greeting is what a push channel sends on connect: the server identity,
// then the catalog.
func greeting() []notification {
	return []notification{
		{
			JSONRPC: jsonrpc.Version,
			Method:  "notifications/initialized",
			Params: initializedParams{
				ServerInfo:   defaultServerInfo(),
				Capabilities: serverCapabilities{},
			},
		},
		{
			JSONRPC: jsonrpc.Version,
			Method:  "notifications/tools/list",
			Params:  toolList{Tools: Tools()},
		},
	}
}

func (h *Handler) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toolList{Tools: Tools()})
}

func (h *Handler) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var params callParams
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, jsonrpc.MaxBodyBytes)).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if params.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Tool name is required"})
		return
	}
	if _, ok := LookupTool(params.Name); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Tool '%s' not found", params.Name)})
		return
	}

	result, err := h.call(r.Context(), params)
	switch {
	case errors.Is(err, ErrInvalidArguments):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Tool execution failed"})
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	req, rpcErr := jsonrpc.Decode(r.Body)
	if rpcErr != nil {
		h.writeRPC(w, jsonrpc.Response{JSONRPC: jsonrpc.Version, Error: rpcErr})
		return
	}
	if req.JSONRPC != jsonrpc.Version {
		h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidRequest, "Invalid JSON-RPC version"))
		return
	}

	switch req.Method {
	case MethodInitialize:
		h.writeRPC(w, jsonrpc.NewResponse(req.ID, initializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      defaultServerInfo(),
		}))
	case MethodToolsList:
		h.writeRPC(w, jsonrpc.NewResponse(req.ID, toolList{Tools: Tools()}))
	case MethodToolsCall:
		var params callParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "Invalid params"))
				return
			}
		}
		if params.Name == "" {
			h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "Tool name is required"))
			return
		}
		result, err := h.call(r.Context(), params)
		switch {
		case errors.Is(err, ErrInvalidArguments):
			h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, err.Error()))
		case err != nil:
			h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternal, "Internal error"))
		default:
			h.writeRPC(w, jsonrpc.NewResponse(req.ID, result))
		}
	default:
		h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeMethodNotFound, "Method not found: "+req.Method))
	}
}

// call runs a tool and records the exchange.
func (h *Handler) call(ctx context.Context, params callParams) (Result, error) {
	logger := telemetry.LoggerFor(ctx, h.logger)
	result, err := h.exec.Execute(ctx, params.Name, params.Arguments)
	if err != nil {
		logger.Error("mcp tool failed",
			slog.String("tool", params.Name),
			slog.String("err", err.Error()),
		)
		return Result{}, err
	}

	if h.audit != nil {
		meta := map[string]any{"arguments": params.Arguments}
		if err := h.audit.Log(ctx, audit.AgentMCP, params.Name, result.Text(), meta); err != nil {
			telemetry.Metrics.AuditFailures.WithLabelValues(audit.AgentMCP).Inc()
			logger.Debug("audit write failed", slog.String("tool", params.Name), slog.String("err", err.Error()))
		}
	}
	return result, nil
}

func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	gauge := telemetry.Metrics.StreamClients.WithLabelValues("sse")
	gauge.Inc()
	defer gauge.Dec()

	for _, n := range greeting() {
		b, _ := json.Marshal(n)
		fmt.Fprintf(w, "data: %s\n\n", b)
	}
	if canFlush {
		flusher.Flush()
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
	}
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", slog.String("err", err.Error()))
		return
	}
	defer conn.CloseNow()

	gauge := telemetry.Metrics.StreamClients.WithLabelValues("ws")
	gauge.Inc()
	defer gauge.Dec()

	ctx := conn.CloseRead(r.Context())

	for _, n := range greeting() {
		b, _ := json.Marshal(n)
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			h.logger.Debug("websocket write failed", slog.String("err", err.Error()))
			return
		}
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-h.done:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.keepAlive)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.logger.Debug("websocket ping failed", slog.String("err", err.Error()))
				return
			}
		}
	}
}

func (h *Handler) writeRPC(w http.ResponseWriter, resp jsonrpc.Response) {
	if resp.Error != nil {
		telemetry.Metrics.RPCErrorsTotal.WithLabelValues("mcp", strconv.Itoa(resp.Error.Code)).Inc()
	}
	jsonrpc.Write(w, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
