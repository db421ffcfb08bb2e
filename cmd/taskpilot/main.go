package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	tphttp "github.com/hexaflow/taskpilot/internal/adapter/http"
	"github.com/hexaflow/taskpilot/internal/adapter/litellm"
	tpotel "github.com/hexaflow/taskpilot/internal/adapter/otel"
	"github.com/hexaflow/taskpilot/internal/adapter/toolserver"
	"github.com/hexaflow/taskpilot/internal/adapter/ws"
	"github.com/hexaflow/taskpilot/internal/config"
	"github.com/hexaflow/taskpilot/internal/logger"
	"github.com/hexaflow/taskpilot/internal/service"
)

const serviceName = "taskpilot"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"store_path", cfg.Store.Path,
		"model", cfg.LLM.Model,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownMetrics, err := tpotel.InitMetrics(ctx, serviceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown", "error", err)
		}
	}()

	metrics, err := tpotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Tool server and gateway ---
	// The tool server starts dormant; the first tool invocation (or the first
	// /api/tasks request) activates the store.
	srv := toolserver.New(toolserver.Config{
		Name:    serviceName,
		Version: "1.0.0",
		DBPath:  cfg.Store.Path,
	})
	defer func() { _ = srv.Close() }()

	gateway, err := service.NewToolGateway(srv, cfg.Cache.RegistryTTL)
	if err != nil {
		return fmt.Errorf("tool gateway: %w", err)
	}
	defer gateway.Close()

	// --- Orchestrator ---
	llmClient := litellm.NewClient(cfg.LLM.URL, cfg.LLM.APIKey, cfg.LLM.Model)
	orchestrator := service.NewOrchestrator(llmClient, gateway, service.OrchestratorConfig{
		MaxIterations: cfg.Agent.MaxIterations,
		RunTimeout:    cfg.Agent.RunTimeout,
		MaxTokens:     cfg.Agent.MaxTokens,
		SystemPrompt:  cfg.Agent.SystemPrompt,
	}, metrics)

	// --- HTTP ---
	hub := ws.NewHub()
	handlers := &tphttp.Handlers{
		Orchestrator: orchestrator,
		ToolServer:   srv,
		Hub:          hub,
	}

	r := chi.NewRouter()
	r.Use(tphttp.CORS(cfg.Server.CORSOrigin))
	r.Use(tphttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(tpotel.HTTPMiddleware(serviceName))

	tphttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return httpSrv.Shutdown(shutdownCtx)
}
