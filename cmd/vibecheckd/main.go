// Command vibecheckd is the VibeCheck server: it wires configuration,
// the database, the tunnel multiplexer, the LLM client, both
// orchestrators, the assessment coordinator, the REST/WS API, and the
// background cleanup loop together, in the same composition order as
// the teacher's cmd/tarsy/main.go.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibecheck/vibecheck/pkg/api"
	"github.com/vibecheck/vibecheck/pkg/assessment"
	"github.com/vibecheck/vibecheck/pkg/cleanup"
	"github.com/vibecheck/vibecheck/pkg/config"
	"github.com/vibecheck/vibecheck/pkg/database"
	"github.com/vibecheck/vibecheck/pkg/lightweight"
	"github.com/vibecheck/vibecheck/pkg/llmclient"
	"github.com/vibecheck/vibecheck/pkg/robust"
	"github.com/vibecheck/vibecheck/pkg/tunnel"
)

func main() {
	if err := run(); err != nil {
		slog.Error("vibecheckd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logLevel := slog.LevelInfo
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting vibecheckd", "http_addr", cfg.HTTPAddr, "has_llm", cfg.HasLLM())

	dbClient, err := database.NewClient(ctx, database.DefaultPoolSettings(cfg.DatabaseURL))
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("closing database client", "error", err)
		}
	}()
	slog.Info("connected to database and applied migrations")

	tunnelRegistry := tunnel.NewRegistry(dbClient)

	var llm llmclient.Client
	llmReady := cfg.HasLLM()
	if cfg.GeminiAPIKey != "" {
		gc, err := llmclient.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Warn("failed to construct Gemini client; LLM-dependent features disabled", "error", err)
			llmReady = false
		} else {
			llm = gc
		}
	}

	lightweightOrch := &lightweight.Orchestrator{
		Store:        dbClient,
		LLM:          llm,
		LLMReady:     llmReady,
		CloneBaseDir: cfg.CloneDir,
		CloneTimeout: config.CloneTimeout,
	}

	robustOrch := &robust.Orchestrator{
		Store:        dbClient,
		LLM:          llm,
		LLMReady:     llmReady,
		Proxy:        tunnelRegistry.ProxyRequest,
		ProbeTimeout: config.AgentProbeTimeout,
	}

	coordinator := assessment.NewCoordinator(dbClient, tunnelRegistry, lightweightOrch, robustOrch)

	cleanupSvc := cleanup.NewService(&cfg.Retention, dbClient)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	server := api.NewServer(cfg, dbClient, coordinator, tunnelRegistry)

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		serveErr <- server.StartWithListener(ln)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown", "error", err)
	}

	if err := coordinator.Wait(); err != nil {
		slog.Error("background assessment tasks", "error", err)
	}

	return nil
}
