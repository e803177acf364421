package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/consultpro/agents/pkg/a2a"
	"github.com/consultpro/agents/pkg/audit"
	"github.com/consultpro/agents/pkg/mcp"
	"github.com/consultpro/agents/pkg/reports"
	"github.com/consultpro/agents/pkg/skills"
	"github.com/consultpro/agents/pkg/store"
)

type producerFunc func(ctx context.Context, c skills.Capability, text string) (string, error)

func (f producerFunc) Produce(ctx context.Context, c skills.Capability, text string) (string, error) {
	return f(ctx, c, text)
}

var echoProducer = producerFunc(func(_ context.Context, c skills.Capability, text string) (string, error) {
	return "[" + string(c) + "] " + text, nil
})

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type recordedLog struct {
	agentType, message, response string
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []recordedLog
	err     error
	filter  audit.Filter
}

func (a *fakeAuditor) Log(_ context.Context, agentType, message, response string, _ any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, recordedLog{agentType, message, response})
	return nil
}

func (a *fakeAuditor) Query(_ context.Context, f audit.Filter) ([]audit.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filter = f
	if a.err != nil {
		return nil, a.err
	}
	out := []audit.Entry{}
	for i := len(a.entries) - 1; i >= 0; i-- {
		e := a.entries[i]
		out = append(out, audit.Entry{AgentType: e.agentType, Message: e.message, Response: e.response})
	}
	return out, nil
}

func newTestGateway(cfg Config) *Gateway {
	g := New(cfg)
	g.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return g
}

func do(g *Gateway, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return m
}

func TestResolveAddr(t *testing.T) {
	tests := []struct {
		bind string
		want string
	}{
		{"", "127.0.0.1:5000"},
		{"loopback", "127.0.0.1:5000"},
		{"lan", "0.0.0.0:5000"},
		{"all", "0.0.0.0:5000"},
		{"10.0.0.7", "10.0.0.7:5000"},
	}
	for _, tt := range tests {
		if got := resolveAddr(tt.bind, 5000); got != tt.want {
			t.Errorf("resolveAddr(%q) = %q, want %q", tt.bind, got, tt.want)
		}
	}
}

func TestHealthz(t *testing.T) {
	g := newTestGateway(Config{})
	w := do(g, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if decodeMap(t, w)["status"] != "ok" {
		t.Errorf("body = %s", w.Body)
	}
}

func TestReadyzReflectsDatabase(t *testing.T) {
	g := newTestGateway(Config{DB: fakePinger{}})
	if w := do(g, http.MethodGet, "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("healthy status = %d", w.Code)
	}

	g = newTestGateway(Config{DB: fakePinger{err: errors.New("locked")}})
	if w := do(g, http.MethodGet, "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d", w.Code)
	}
}

func TestAgentsHealth(t *testing.T) {
	g := newTestGateway(Config{DB: fakePinger{}})
	w := do(g, http.MethodGet, "/agents/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeMap(t, w)
	if body["status"] != "healthy" || body["service"] != "agents" {
		t.Errorf("body = %v", body)
	}
	if body["timestamp"] != "2026-03-15T12:00:00Z" {
		t.Errorf("timestamp = %v", body["timestamp"])
	}
}

func TestAgentsHealthUnhealthy(t *testing.T) {
	g := newTestGateway(Config{DB: fakePinger{err: errors.New("gone")}})
	w := do(g, http.MethodGet, "/agents/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeMap(t, w)
	if body["status"] != "unhealthy" || body["service"] != "agents" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["timestamp"]; ok {
		t.Error("unhealthy body should not carry a timestamp")
	}
}

func TestAgentsList(t *testing.T) {
	g := newTestGateway(Config{})
	w := do(g, http.MethodGet, "/agents/list", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Agents []skills.Agent `json:"agents"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Agents) != 3 {
		t.Fatalf("agents = %d, want 3", len(body.Agents))
	}
	want := []string{"analytics", "planning", "client-insights"}
	for i, a := range body.Agents {
		if a.ID != want[i] {
			t.Errorf("agents[%d].ID = %q, want %q", i, a.ID, want[i])
		}
		if len(a.Capabilities) == 0 {
			t.Errorf("agents[%d] has no capabilities", i)
		}
	}
}

func TestChat(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantAgent string
	}{
		{"routed to planning", `{"message":"Who should we assign to the project?"}`, "planning"},
		{"routed to client insights", `{"message":"Which account needs attention?"}`, "client-insights"},
		{"default analytics", `{"message":"How did we do this quarter?"}`, "analytics"},
		{"explicit agent type", `{"message":"revenue please","agent_type":"planning"}`, "planning"},
		{"unknown agent type falls back", `{"message":"plan the timeline","agent_type":"sales"}`, "analytics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aud := &fakeAuditor{}
			g := newTestGateway(Config{Chat: NewChatRouter(echoProducer, aud, nil)})
			w := do(g, http.MethodPost, "/agents/chat", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d body = %s", w.Code, w.Body)
			}
			var reply ChatReply
			if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
				t.Fatal(err)
			}
			if reply.AgentType != tt.wantAgent {
				t.Errorf("agent_type = %q, want %q", reply.AgentType, tt.wantAgent)
			}
			if !strings.HasPrefix(reply.Response, "["+tt.wantAgent+"] ") {
				t.Errorf("response = %q", reply.Response)
			}
			if len(aud.entries) != 1 || aud.entries[0].agentType != tt.wantAgent {
				t.Errorf("audit entries = %+v", aud.entries)
			}
		})
	}
}

func TestChatRequiresMessage(t *testing.T) {
	g := newTestGateway(Config{Chat: NewChatRouter(echoProducer, nil, nil)})
	for _, body := range []string{`{}`, `{"message":""}`, `not json`} {
		w := do(g, http.MethodPost, "/agents/chat", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, w.Code)
			continue
		}
		if decodeMap(t, w)["error"] != "Message is required" {
			t.Errorf("%s: body = %s", body, w.Body)
		}
	}
}

func TestChatProducerFailure(t *testing.T) {
	failing := producerFunc(func(context.Context, skills.Capability, string) (string, error) {
		return "", errors.New("store offline")
	})
	aud := &fakeAuditor{}
	g := newTestGateway(Config{Chat: NewChatRouter(failing, aud, nil)})
	w := do(g, http.MethodPost, "/agents/chat", `{"message":"revenue"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if decodeMap(t, w)["error"] != "Failed to process message" {
		t.Errorf("body = %s", w.Body)
	}
	if len(aud.entries) != 0 {
		t.Errorf("failed chat was audited: %+v", aud.entries)
	}
}

func TestChatAuditFailureIsIgnored(t *testing.T) {
	aud := &fakeAuditor{err: errors.New("disk full")}
	g := newTestGateway(Config{Chat: NewChatRouter(echoProducer, aud, nil)})
	w := do(g, http.MethodPost, "/agents/chat", `{"message":"revenue"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var reply ChatReply
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatal(err)
	}
	if reply.Response != "[analytics] revenue" {
		t.Errorf("response = %q", reply.Response)
	}
}

func TestConversations(t *testing.T) {
	aud := &fakeAuditor{}
	g := newTestGateway(Config{
		Chat:          NewChatRouter(echoProducer, aud, nil),
		Conversations: aud,
	})
	do(g, http.MethodPost, "/agents/chat", `{"message":"first"}`)
	do(g, http.MethodPost, "/agents/chat", `{"message":"second"}`)

	w := do(g, http.MethodGet, "/agents/conversations", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var entries []audit.Entry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Message != "second" {
		t.Errorf("entries = %+v", entries)
	}
	if aud.filter.Limit != defaultConversationLimit {
		t.Errorf("limit = %d, want %d", aud.filter.Limit, defaultConversationLimit)
	}

	do(g, http.MethodGet, "/agents/conversations?limit=5", "")
	if aud.filter.Limit != 5 {
		t.Errorf("limit = %d, want 5", aud.filter.Limit)
	}
	do(g, http.MethodGet, "/agents/conversations?limit=abc", "")
	if aud.filter.Limit != defaultConversationLimit {
		t.Errorf("bad limit = %d, want default", aud.filter.Limit)
	}
}

func TestConversationsFailure(t *testing.T) {
	g := newTestGateway(Config{Conversations: &fakeAuditor{err: errors.New("boom")}})
	w := do(g, http.MethodGet, "/agents/conversations", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if decodeMap(t, w)["error"] != "Failed to fetch conversations" {
		t.Errorf("body = %s", w.Body)
	}
}

func TestCORS(t *testing.T) {
	g := newTestGateway(Config{CORSOrigin: "https://app.example.com"})

	w := do(g, http.MethodOptions, "/agents/chat", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}

	w = do(g, http.MethodGet, "/healthz", "")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin on GET = %q", got)
	}

	g = newTestGateway(Config{})
	w = do(g, http.MethodGet, "/healthz", "")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("CORS disabled but Allow-Origin = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	g := newTestGateway(Config{})
	w := do(g, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

// TestMountedSurfaces drives the A2A and MCP handlers through the gateway
// router against a seeded database.
func TestMountedSurfaces(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "gateway.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if _, err := st.Seed(context.Background(), time.Now()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	auditLog, err := audit.New(st.DB())
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}

	registry := reports.DefaultRegistry(st)
	svc := a2a.NewService(a2a.ServiceConfig{Producer: registry, Audit: auditLog})
	g := newTestGateway(Config{
		DB:            st,
		Chat:          NewChatRouter(registry, auditLog, nil),
		Conversations: auditLog,
		A2AHandler:    a2a.NewHandler(a2a.HandlerConfig{Card: a2a.DefaultCard("http://localhost:5000/a2a/"), Service: svc}),
		MCPHandler:    mcp.NewHandler(mcp.HandlerConfig{Executor: mcp.NewExecutor(st), Audit: auditLog}),
	})

	w := do(g, http.MethodGet, "/.well-known/agent.json", "")
	if w.Code != http.StatusOK || decodeMap(t, w)["name"] != "ConsultPro AI" {
		t.Fatalf("agent card: %d %s", w.Code, w.Body)
	}

	w = do(g, http.MethodPost, "/a2a/tasks/send",
		`{"jsonrpc":"2.0","id":1,"method":"tasks/send","params":{"id":"t-1","message":{"parts":[{"type":"text","text":"Identify churn risks"}]}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("tasks/send: %d %s", w.Code, w.Body)
	}

	w = do(g, http.MethodGet, "/a2a/tasks/t-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("task view: %d %s", w.Code, w.Body)
	}
	status, _ := decodeMap(t, w)["status"].(map[string]any)
	if status["state"] != "completed" {
		t.Errorf("state = %v", status["state"])
	}

	w = do(g, http.MethodGet, "/mcp/tools", "")
	if w.Code != http.StatusOK {
		t.Fatalf("mcp tools: %d %s", w.Code, w.Body)
	}

	w = do(g, http.MethodPost, "/mcp/tools/call", `{"name":"get_financial_summary"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("mcp call: %d %s", w.Code, w.Body)
	}

	w = do(g, http.MethodPost, "/agents/chat", `{"message":"Suggest resource allocation"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("chat: %d %s", w.Code, w.Body)
	}

	entries, err := auditLog.Query(context.Background(), audit.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.AgentType] = true
	}
	for _, want := range []string{audit.AgentA2A, audit.AgentMCP, "planning"} {
		if !seen[want] {
			t.Errorf("no audit entry for %q in %+v", want, seen)
		}
	}
}

func TestServeShutsDownWithOpenStream(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "shutdown.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	g := newTestGateway(Config{
		DB: st,
		MCPHandler: mcp.NewHandler(mcp.HandlerConfig{
			Executor:  mcp.NewExecutor(st),
			KeepAlive: time.Hour,
		}),
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- g.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/mcp/sse")
	if err != nil {
		t.Fatalf("GET /mcp/sse: %v", err)
	}
	defer resp.Body.Close()
	if line, err := bufio.NewReader(resp.Body).ReadString('\n'); err != nil || !strings.HasPrefix(line, "data: ") {
		t.Fatalf("first line = %q, err = %v", line, err)
	}

	start := time.Now()
	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
		if elapsed := time.Since(start); elapsed > 3*time.Second {
			t.Errorf("shutdown took %s", elapsed)
		}
	case <-time.After(8 * time.Second):
		t.Fatal("Serve did not return while a stream client was connected")
	}
}
