package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/consultpro/agents/pkg/jsonrpc"
	"github.com/consultpro/agents/pkg/store"
)

type fakeAuditor struct {
	mu      sync.Mutex
	entries []string
	err     error
}

func (a *fakeAuditor) Log(_ context.Context, agentType, message, _ string, _ any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, agentType+"|"+message)
	return nil
}

func testHandler(t *testing.T, src Source, aud Auditor) *Handler {
	t.Helper()
	return NewHandler(HandlerConfig{
		Executor:  testExecutor(src),
		Audit:     aud,
		KeepAlive: 10 * time.Millisecond,
	})
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type rpcReply struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *jsonrpc.Error  `json:"error"`
}

func decodeReply(t *testing.T, w *httptest.ResponseRecorder) rpcReply {
	t.Helper()
	var r rpcReply
	if err := json.Unmarshal(w.Body.Bytes(), &r); err != nil {
		t.Fatalf("decode: %v (%s)", err, w.Body.String())
	}
	return r
}

func TestListToolsEndpoint(t *testing.T) {
	h := testHandler(t, seededStore(t), nil)
	req := httptest.NewRequest("GET", "/mcp/tools", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Tools) != 8 {
		t.Fatalf("tools = %d, want 8", len(body.Tools))
	}
	if body.Tools[0].Name != ToolGetClients || body.Tools[7].Name != ToolSearchData {
		t.Errorf("catalog order changed: first %s last %s", body.Tools[0].Name, body.Tools[7].Name)
	}
	if body.Tools[0].InputSchema["type"] != "object" {
		t.Errorf("inputSchema = %v", body.Tools[0].InputSchema)
	}
}

func TestCallToolGetClients(t *testing.T) {
	aud := &fakeAuditor{}
	h := testHandler(t, seededStore(t), aud)

	w := post(h, "/mcp/tools/call", `{"name":"get_clients","arguments":{}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var res Result
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Content) != 1 || res.Content[0].Type != "text" {
		t.Fatalf("content = %+v", res.Content)
	}
	var clients []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(res.Content[0].Text), &clients); err != nil {
		t.Fatalf("text is not a JSON list: %v", err)
	}
	for i := 1; i < len(clients); i++ {
		if clients[i-1].Name > clients[i].Name {
			t.Errorf("not sorted by name: %q before %q", clients[i-1].Name, clients[i].Name)
		}
	}
	if len(aud.entries) != 1 || aud.entries[0] != "mcp|get_clients" {
		t.Errorf("audit = %v", aud.entries)
	}
}

func TestCallToolErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     func(t *testing.T) Source
		body    string
		status  int
		message string
	}{
		{"missing name", func(t *testing.T) Source { return seededStore(t) }, `{"arguments":{}}`, http.StatusBadRequest, "Tool name is required"},
		{"unknown tool", func(t *testing.T) Source { return seededStore(t) }, `{"name":"nope"}`, http.StatusNotFound, "Tool 'nope' not found"},
		{"bad body", func(t *testing.T) Source { return seededStore(t) }, `{"name":`, http.StatusBadRequest, "Invalid request body"},
		{"execution failure", func(t *testing.T) Source { return failingSource{Source: seededStore(t)} }, `{"name":"get_clients"}`, http.StatusInternalServerError, "Tool execution failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testHandler(t, tt.src(t), nil)
			w := post(h, "/mcp/tools/call", tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var body map[string]string
			_ = json.NewDecoder(w.Body).Decode(&body)
			if body["error"] != tt.message {
				t.Errorf("error = %q, want %q", body["error"], tt.message)
			}
		})
	}
}

func TestCallToolInvalidArguments(t *testing.T) {
	h := testHandler(t, seededStore(t), nil)
	w := post(h, "/mcp/tools/call", `{"name":"get_client_details","arguments":{}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestMessageInitialize(t *testing.T) {
	h := testHandler(t, seededStore(t), nil)
	w := post(h, "/mcp/message", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	r := decodeReply(t, w)
	var init struct {
		ProtocolVersion string `json:"protocolVersion"`
		Capabilities    struct {
			Tools struct {
				ListChanged bool `json:"listChanged"`
			} `json:"tools"`
		} `json:"capabilities"`
		ServerInfo struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(r.Result, &init); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if init.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocolVersion = %q", init.ProtocolVersion)
	}
	if init.ServerInfo.Name != "ConsultPro MCP Server" || init.ServerInfo.Version != "1.0.0" {
		t.Errorf("serverInfo = %+v", init.ServerInfo)
	}
	if !strings.Contains(string(r.Result), `"listChanged":false`) {
		t.Errorf("capabilities missing listChanged: %s", r.Result)
	}
}

func TestMessageToolsListAndCall(t *testing.T) {
	h := testHandler(t, seededStore(t), nil)

	r := decodeReply(t, post(h, "/mcp/message", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	var list toolList
	if err := json.Unmarshal(r.Result, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Tools) != 8 {
		t.Errorf("tools = %d", len(list.Tools))
	}

	w := post(h, "/mcp/message", `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_kpis","arguments":{}}}`)
	r = decodeReply(t, w)
	if r.Error != nil {
		t.Fatalf("error = %+v", r.Error)
	}
	var res Result
	if err := json.Unmarshal(r.Result, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(res.Text(), "Cost per unit") {
		t.Errorf("kpis text = %s", res.Text())
	}
}

func TestMessageUnknownToolIsResult(t *testing.T) {
	h := testHandler(t, seededStore(t), nil)
	w := post(h, "/mcp/message", `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"nope"}}`)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	r := decodeReply(t, w)
	if r.Error != nil {
		t.Fatalf("unknown tool should be a result, got %+v", r.Error)
	}
	var res Result
	_ = json.Unmarshal(r.Result, &res)
	if res.Text() != "Unknown tool: nope" {
		t.Errorf("text = %q", res.Text())
	}
}

func TestMessageErrors(t *testing.T) {
	tests := []struct {
		name   string
		src    func(t *testing.T) Source
		body   string
		status int
		code   int
	}{
		{"bad version", func(t *testing.T) Source { return seededStore(t) }, `{"jsonrpc":"1.0","id":1,"method":"tools/list"}`, http.StatusBadRequest, jsonrpc.CodeInvalidRequest},
		{"unknown method", func(t *testing.T) Source { return seededStore(t) }, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, http.StatusOK, jsonrpc.CodeMethodNotFound},
		{"parse error", func(t *testing.T) Source { return seededStore(t) }, `not json`, http.StatusBadRequest, jsonrpc.CodeParse},
		{"invalid args", func(t *testing.T) Source { return seededStore(t) }, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search_data"}}`, http.StatusBadRequest, jsonrpc.CodeInvalidParams},
		{"execution failure", func(t *testing.T) Source { return failingSource{Source: seededStore(t)} }, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_clients"}}`, http.StatusInternalServerError, jsonrpc.CodeInternal},
		{"missing params", func(t *testing.T) Source { return seededStore(t) }, `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`, http.StatusBadRequest, jsonrpc.CodeInvalidParams},
		{"empty tool name", func(t *testing.T) Source { return seededStore(t) }, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"arguments":{}}}`, http.StatusBadRequest, jsonrpc.CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testHandler(t, tt.src(t), nil)
			w := post(h, "/mcp/message", tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			r := decodeReply(t, w)
			if r.Error == nil || r.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %d", r.Error, tt.code)
			}
		})
	}
}

type panickingSource struct {
	Source
}

func (panickingSource) ListClients(context.Context, store.ClientFilter) ([]store.Client, error) {
	panic("nil pointer in driver")
}

func TestMessagePanicBecomesInternalError(t *testing.T) {
	h := testHandler(t, panickingSource{Source: seededStore(t)}, nil)
	w := post(h, "/mcp/message", `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"get_clients"}}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	r := decodeReply(t, w)
	if r.Error == nil || r.Error.Code != jsonrpc.CodeInternal || r.Error.Message != "Internal error" {
		t.Errorf("error = %+v, want -32603 Internal error", r.Error)
	}
}

func TestAuditFailureDoesNotChangeToolResponse(t *testing.T) {
	s := seededStore(t)
	ok := testHandler(t, s, &fakeAuditor{})
	broken := testHandler(t, s, &fakeAuditor{err: errors.New("disk full")})

	body := `{"name":"get_financial_summary"}`
	a := post(ok, "/mcp/tools/call", body)
	b := post(broken, "/mcp/tools/call", body)
	if a.Code != b.Code || a.Body.String() != b.Body.String() {
		t.Errorf("responses differ:\n%d %s\n%d %s", a.Code, a.Body.String(), b.Code, b.Body.String())
	}
}

func TestSSEStream(t *testing.T) {
	h := testHandler(t, seededStore(t), nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/mcp/sse", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	var frames []notification
	sawKeepalive := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			var n notification
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &n); err != nil {
				t.Fatalf("frame: %v", err)
			}
			frames = append(frames, n)
		case line == ": keepalive":
			sawKeepalive = true
		}
		if sawKeepalive {
			break
		}
	}

	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	if frames[0].Method != "notifications/initialized" || frames[1].Method != "notifications/tools/list" {
		t.Errorf("methods = %s, %s", frames[0].Method, frames[1].Method)
	}
	if !sawKeepalive {
		t.Error("no keepalive comment received")
	}
}

func TestWebSocketStream(t *testing.T) {
	h := testHandler(t, seededStore(t), nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/mcp/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	var methods []string
	for range 2 {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		var n struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(data, &n); err != nil {
			t.Fatalf("frame: %v", err)
		}
		methods = append(methods, n.Method)
	}
	if methods[0] != "notifications/initialized" || methods[1] != "notifications/tools/list" {
		t.Errorf("methods = %v", methods)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestShutdownEndsSSEStream(t *testing.T) {
	h := NewHandler(HandlerConfig{Executor: testExecutor(seededStore(t)), KeepAlive: time.Hour})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/mcp/sse", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	if line, err := reader.ReadString('\n'); err != nil || !strings.HasPrefix(line, "data: ") {
		t.Fatalf("first line = %q, err = %v", line, err)
	}

	h.Shutdown()
	h.Shutdown()

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, reader)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("stream ended with %v, want a clean EOF", err)
		}
	case <-ctx.Done():
		t.Fatal("stream still open after Shutdown")
	}
}

func TestShutdownClosesWebSocket(t *testing.T) {
	h := NewHandler(HandlerConfig{Executor: testExecutor(seededStore(t)), KeepAlive: time.Hour})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/mcp/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	for range 2 {
		if _, _, err := conn.Read(ctx); err != nil {
			t.Fatalf("Read: %v", err)
		}
	}

	h.Shutdown()

	_, _, err = conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Errorf("close status = %v (err %v), want StatusGoingAway", got, err)
	}
}
