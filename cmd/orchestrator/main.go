package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/driftcode/orchestra/internal/agent"
	"github.com/driftcode/orchestra/internal/agent/developer"
	"github.com/driftcode/orchestra/internal/agent/pm"
	"github.com/driftcode/orchestra/internal/common/config"
	"github.com/driftcode/orchestra/internal/common/logger"
	"github.com/driftcode/orchestra/internal/common/tracing"
	"github.com/driftcode/orchestra/internal/eventbus"
	"github.com/driftcode/orchestra/internal/generator"
	"github.com/driftcode/orchestra/internal/httpapi"
	"github.com/driftcode/orchestra/internal/notifier"
	"github.com/driftcode/orchestra/internal/orchestrator/queue"
	"github.com/driftcode/orchestra/internal/orchestrator/registry"
	"github.com/driftcode/orchestra/internal/orchestrator/resultstore"
	"github.com/driftcode/orchestra/internal/orchestrator/scheduler"
	"github.com/driftcode/orchestra/internal/orchestrator/statusmgr"
	"github.com/driftcode/orchestra/internal/statusdump"
	"github.com/driftcode/orchestra/internal/streaming"
	updateexec "github.com/driftcode/orchestra/internal/update/executor"
	"github.com/driftcode/orchestra/internal/update/preflight"
	updatequeue "github.com/driftcode/orchestra/internal/update/queue"
	"github.com/driftcode/orchestra/internal/update/snapshot"
	"github.com/driftcode/orchestra/internal/update/validation"
	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

func main() {
	// 1. Load configuration.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	// 2. Initialize logger.
	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting orchestrator service")

	// 3. Optional OTel tracing (no-op unless an OTLP endpoint is set).
	tracing.Init(cfg.Tracing.OTLPEndpoint, "orchestra")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(ctx); err != nil {
			log.Warn("tracing shutdown error", zap.Error(err))
		}
	}()

	// 4. Root context, cancelled on shutdown signal.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Event bus (NATS if configured, in-memory fallback otherwise).
	bus, err := eventbus.New(cfg.NATS, log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer bus.Close()

	// 6. Generator client and its workspace manager.
	gen, workspace, err := generator.New(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize generator", zap.Error(err))
	}
	go workspace.RunSweepLoop(ctx.Done(), time.Duration(cfg.Workspace.SweepIntervalMinutes)*time.Minute)

	// 7. Agent registry, seeded with the two built-in agent kinds.
	reg := registry.New()
	reg.Register(string(v1.TaskKindDeveloperCodeGen), agent.Factory(func() agent.Agent { return developer.New(gen) }), cfg.Orchestrator.MaxInFlightDeveloper)
	reg.Register(string(v1.TaskKindProjectAnalysis), agent.Factory(func() agent.Agent { return pm.New(gen) }), cfg.Orchestrator.MaxInFlightAnalysis)
	log.Info("agent registry ready", zap.Strings("kinds", reg.Kinds()))

	// 8. Task Queue, Result Store, Status Manager, Orchestrator.
	taskQueue := queue.NewTaskQueue(cfg.Orchestrator.MaxQueue)
	results := resultstore.New()
	status := statusmgr.New()
	for _, kind := range reg.Kinds() {
		status.RegisterKind(kind)
	}

	orch := scheduler.New(cfg.Orchestrator, taskQueue, results, status, reg, log)
	orchDone := make(chan struct{})
	go func() {
		orch.Run(ctx)
		close(orchDone)
	}()

	// 9. Notifier (bot front end).
	notif, err := notifier.New(cfg.Notifier, cfg.Update.AuthorizedPrincipals, log)
	if err != nil {
		log.Fatal("failed to initialize notifier", zap.Error(err))
	}

	// 10. Self-update subsystem: Update Queue, Snapshot Manager,
	// Preflight Checker, Validation Pipeline, Update Executor.
	updateQueue := updatequeue.New(cfg.Update)
	snapshots := snapshot.New(cfg.Update.RepoPath, log)
	preflightChecker := preflight.New(cfg.Update.RepoPath, cfg.Update.MinDiskMB, cfg.Update.SkipTestSmoke, cfg.Update.TestSmokeCommand, gen, log)
	validationPipeline := validation.New(gen, cfg.Update.RepoPath, log)
	updateExecutor := updateexec.New(cfg.Update, updateQueue, snapshots, preflightChecker, validationPipeline, gen, notif, bus, log)
	go updateExecutor.Run(ctx)
	defer updateExecutor.Stop()

	// 11. Optional periodic AgentStatus/update-history SQLite dump.
	dumper, err := statusdump.New(cfg.StatusDump, status, log)
	if err != nil {
		log.Fatal("failed to initialize status dump", zap.Error(err))
	}
	if dumper != nil {
		updateExecutor.SetHistoryRecorder(dumper)
		dumper.Run(ctx)
		defer dumper.Stop()
		log.Info("status dump enabled", zap.String("path", cfg.StatusDump.Path))
	}

	// 12. Streaming hub, bridged to the event bus.
	hub := streaming.NewHub(log)
	go hub.Run(ctx)
	if err := hub.AttachBus(bus); err != nil {
		log.Fatal("failed to attach streaming hub to event bus", zap.Error(err))
	}
	streamHandler := streaming.NewHandler(hub, log)

	// 13. HTTP server.
	handler := httpapi.NewHandler(orch, updateQueue, updateExecutor, log)
	router := httpapi.NewRouter(cfg.API, handler, streamHandler, log)

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.API.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.API.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	// 14. Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down orchestrator service")

	// 15. Graceful shutdown: stop accepting HTTP, cancel background
	// loops, let the Orchestrator drain in-flight executions within
	// its own shutdown grace period.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	cancel()
	<-orchDone
	log.Info("orchestrator service stopped")
}
