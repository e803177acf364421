package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/consultpro/agents/pkg/audit"
	"github.com/consultpro/agents/pkg/skills"
	"github.com/consultpro/agents/pkg/telemetry"
)

const defaultConversationLimit = 50

type Pinger interface {
	Ping(ctx context.Context) error
}

type ConversationLog interface {
	Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error)
}

type Gateway struct {
	server        *http.Server
	router        *chi.Mux
	logger        *slog.Logger
	db            Pinger
	chat          *ChatRouter
	conversations ConversationLog
	a2aHandler    http.Handler
	mcpHandler    http.Handler
	corsOrigin    string
	now           func() time.Time
}

type Config struct {
	Bind          string
	Port          int
	CORSOrigin    string
	Logger        *slog.Logger
	DB            Pinger
	Chat          *ChatRouter
	Conversations ConversationLog
	A2AHandler    http.Handler
	MCPHandler    http.Handler
}

func New(cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(telemetry.RequestLogger(cfg.Logger))

	g := &Gateway{
		router:        r,
		logger:        cfg.Logger,
		db:            cfg.DB,
		chat:          cfg.Chat,
		conversations: cfg.Conversations,
		a2aHandler:    cfg.A2AHandler,
		mcpHandler:    cfg.MCPHandler,
		corsOrigin:    cfg.CORSOrigin,
		now:           time.Now,
	}
	if g.corsOrigin != "" {
		r.Use(g.corsMiddleware)
	}

	g.registerRoutes()

	addr := resolveAddr(cfg.Bind, cfg.Port)
	g.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	for _, h := range []http.Handler{cfg.A2AHandler, cfg.MCPHandler} {
		if s, ok := h.(streamCloser); ok {
			g.server.RegisterOnShutdown(s.Shutdown)
		}
	}

	return g
}

// streamCloser is implemented by handlers that hold long-lived streams open.
// http.Server.Shutdown waits on them until Shutdown is called.
type streamCloser interface {
	Shutdown()
}

func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Addr() string {
	return g.server.Addr
}

func (g *Gateway) registerRoutes() {
	g.router.Get("/healthz", g.handleHealthz)
	g.router.Get("/readyz", g.handleReadyz)
	g.router.Handle("/metrics", promhttp.Handler())

	g.router.Route("/agents", func(r chi.Router) {
		r.Get("/health", g.handleAgentsHealth)
		r.Post("/chat", g.handleChat)
		r.Get("/list", g.handleAgentsList)
		r.Get("/conversations", g.handleConversations)
	})

	if g.a2aHandler != nil {
		g.router.Handle("/.well-known/agent.json", g.a2aHandler)
		g.router.Handle("/a2a", g.a2aHandler)
		g.router.Handle("/a2a/*", g.a2aHandler)
	}
	if g.mcpHandler != nil {
		g.router.Handle("/mcp/*", g.mcpHandler)
	}
}

func (g *Gateway) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.server.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	logger := telemetry.FromContext(ctx)
	logger.Info("gateway listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := g.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return g.shutdown()
	case err := <-errCh:
		return err
	}
}

func (g *Gateway) shutdown() error {
	g.logger.Info("gateway shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return g.server.Shutdown(ctx)
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (g *Gateway) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := g.ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ready"}`)
}

func (g *Gateway) ping(ctx context.Context) error {
	if g.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return g.db.Ping(ctx)
}

func (g *Gateway) handleAgentsHealth(w http.ResponseWriter, r *http.Request) {
	if err := g.ping(r.Context()); err != nil {
		g.logger.Warn("health check failed", slog.String("err", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "service": "agents"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "agents",
		"timestamp": g.now().UTC().Format(time.RFC3339Nano),
	})
}

type chatRequest struct {
	Message   string `json:"message"`
	AgentType string `json:"agent_type"`
}

func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Message is required"})
		return
	}
	if g.chat == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Chat is not configured"})
		return
	}

	reply, err := g.chat.Handle(r.Context(), req.Message, req.AgentType)
	switch {
	case errors.Is(err, ErrEmptyMessage):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Message is required"})
	case err != nil:
		telemetry.LoggerFor(r.Context(), g.logger).Error("chat failed", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to process message"})
	default:
		writeJSON(w, http.StatusOK, reply)
	}
}

func (g *Gateway) handleAgentsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]skills.Agent{"agents": skills.Agents()})
}

func (g *Gateway) handleConversations(w http.ResponseWriter, r *http.Request) {
	if g.conversations == nil {
		writeJSON(w, http.StatusOK, []audit.Entry{})
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultConversationLimit
	}

	entries, err := g.conversations.Query(r.Context(), audit.Filter{Limit: limit})
	if err != nil {
		g.logger.Error("conversation fetch failed", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch conversations"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (g *Gateway) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", g.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func resolveAddr(bind string, port int) string {
	var host string
	switch bind {
	case "lan", "all":
		host = "0.0.0.0"
	case "loopback", "":
		host = "127.0.0.1"
	default:
		host = bind
	}
	return fmt.Sprintf("%s:%d", host, port)
}
