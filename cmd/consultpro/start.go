package consultpro

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/consultpro/agents/pkg/a2a"
	"github.com/consultpro/agents/pkg/audit"
	"github.com/consultpro/agents/pkg/config"
	"github.com/consultpro/agents/pkg/gateway"
	"github.com/consultpro/agents/pkg/mcp"
	"github.com/consultpro/agents/pkg/reports"
	"github.com/consultpro/agents/pkg/store"
	"github.com/consultpro/agents/pkg/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ConsultPro agents gateway",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg := config.Current()

	if err := config.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format, nil)
	logger.Info("starting consultpro agents",
		slog.String("version", version),
		slog.Int("port", cfg.Gateway.Port),
		slog.String("bind", cfg.Gateway.Bind),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = telemetry.WithLogger(ctx, logger)

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Version:     version,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracer(sctx); err != nil {
			logger.Warn("tracer shutdown failed", slog.String("err", err.Error()))
		}
	}()

	db, err := store.New(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = db.Close() }()

	if cfg.Store.Seed {
		seeded, err := db.Seed(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("seeding store: %w", err)
		}
		if seeded {
			logger.Info("seeded demo data", slog.String("dsn", cfg.Store.DSN))
		}
	}

	// A nil *audit.Logger must not reach the interface fields below.
	var (
		a2aAudit  a2a.Auditor
		mcpAudit  mcp.Auditor
		chatAudit gateway.Auditor
		convLog   gateway.ConversationLog
	)
	if cfg.Audit.Enabled {
		auditLog, err := audit.New(db.DB())
		if err != nil {
			return fmt.Errorf("initializing audit logger: %w", err)
		}
		a2aAudit, mcpAudit, chatAudit, convLog = auditLog, auditLog, auditLog, auditLog
	}

	registry := reports.DefaultRegistry(db)

	gwCfg := gateway.Config{
		Bind:          cfg.Gateway.Bind,
		Port:          cfg.Gateway.Port,
		CORSOrigin:    cfg.Gateway.CORSOrigin,
		Logger:        logger,
		DB:            db,
		Chat:          gateway.NewChatRouter(registry, chatAudit, logger),
		Conversations: convLog,
	}

	if cfg.A2A.Enabled {
		svc := a2a.NewService(a2a.ServiceConfig{
			Producer: registry,
			Audit:    a2aAudit,
			Logger:   logger,
		})
		gwCfg.A2AHandler = a2a.NewHandler(a2a.HandlerConfig{
			Card:      a2a.DefaultCard(cfg.A2A.ExternalURL),
			Service:   svc,
			Logger:    logger,
			AuthToken: cfg.A2A.AuthToken,
		})
		logger.Info("a2a enabled", slog.String("url", cfg.A2A.ExternalURL))
	}

	if cfg.MCP.Enabled {
		exec := mcp.NewExecutor(db)
		gwCfg.MCPHandler = mcp.NewHandler(mcp.HandlerConfig{
			Executor:  exec,
			Audit:     mcpAudit,
			Logger:    logger,
			KeepAlive: cfg.MCP.KeepAliveInterval(),
			Stream:    mcp.StreamHandler(mcp.NewSDKServer(exec)),
		})
		logger.Info("mcp enabled", slog.Int("tools", len(mcp.Tools())))
	}

	gw := gateway.New(gwCfg)
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	logger.Info("shutting down")
	return nil
}
