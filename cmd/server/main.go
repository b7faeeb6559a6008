// Command server starts the agent orchestrator: HTTP ingress, job processor
// and operator surface in one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/agent-orchestrator/internal/adapter/handlers"
	httpserver "github.com/fairyhunter13/agent-orchestrator/internal/adapter/httpserver"
	"github.com/fairyhunter13/agent-orchestrator/internal/adapter/observability"
	queuemem "github.com/fairyhunter13/agent-orchestrator/internal/adapter/queue/memory"
	repomem "github.com/fairyhunter13/agent-orchestrator/internal/adapter/repo/memory"
	"github.com/fairyhunter13/agent-orchestrator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/agent-orchestrator/internal/app"
	"github.com/fairyhunter13/agent-orchestrator/internal/audit"
	"github.com/fairyhunter13/agent-orchestrator/internal/config"
	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
	"github.com/fairyhunter13/agent-orchestrator/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP and job instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	retry := domain.RetryPolicy{
		Enabled:    cfg.RetryEnabled,
		MaxRetries: cfg.RetryMaxRetries,
		Strategy:   domain.BackoffStrategy(cfg.RetryBackoffStrategy),
		BaseDelay:  time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:   time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
		MinJitter:  cfg.RetryMinJitter,
		MaxJitter:  cfg.RetryMaxJitter,
	}
	timeouts, err := cfg.HandlerTimeouts()
	if err != nil {
		slog.Error("invalid handler timeout configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Storage: PostgreSQL when DB_URL is set, otherwise fully in-memory.
	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	var (
		statuses   domain.StatusStore
		tasks      domain.TaskRepository
		auditStore domain.AuditStore
		pingDB     func(context.Context) error
	)
	if cfg.DBURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			slog.Error("db connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		statuses = postgres.NewStatusStore(pool)
		tasks = postgres.NewTaskRepo(pool)
		auditStore = postgres.NewAuditStore(pool)
		pingDB = pool.Ping
		slog.Info("using postgres storage")
	} else {
		statuses = repomem.NewStatusStore()
		tasks = repomem.NewTaskRepository()
		auditStore = repomem.NewAuditStore()
		slog.Info("DB_URL not set; using in-memory storage")
	}

	auditLogger := audit.NewLogger(logger, audit.WithStore(auditStore))
	defer auditLogger.Close()

	if cfg.AuditRetentionDays > 0 {
		sweeper := audit.NewRetentionSweeper(auditStore, cfg.AuditRetentionDays)
		go sweeper.RunPeriodic(ctx, cfg.AuditCleanupInterval)
		slog.Info("audit retention sweeper started",
			slog.Int("retention_days", cfg.AuditRetentionDays),
			slog.Duration("interval", cfg.AuditCleanupInterval))
	}

	// Job core
	queue := queuemem.New(cfg.MaxQueueSize, cfg.EnablePrioritization)
	dedup := usecase.NewDeduper()
	dispatcher := usecase.NewDispatcher(queue, statuses, auditLogger)
	dispatcher.Register(handlers.NewGeneratePlanHandler(tasks, nil, dedup, dispatcher, auditLogger, retry))
	dispatcher.Register(handlers.NewExecutePlanHandler(tasks, nil, auditLogger))

	processor := app.NewProcessor(queue, statuses, dispatcher, dedup, auditLogger, retry,
		timeouts, cfg.MaxConcurrency, cfg.ShutdownTimeout())
	processor.Start(ctx)

	// With a durable store, records stranded in processing by a crash need
	// the sweeper; in-memory state dies with the process.
	if cfg.DBURL != "" {
		go app.NewStuckJobSweeper(statuses, dedup, auditLogger, cfg.StuckJobMaxAge, cfg.StuckJobSweepInterval).Run(ctx)
	}

	// HTTP surface
	ingress := usecase.NewIngressService(tasks, dedup, dispatcher, auditLogger, retry)
	health := usecase.NewHealthService(queue, statuses, pingDB)
	srv := httpserver.NewServer(statuses, health, ingress, dispatcher)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	// Stop taking requests first, then drain the processor, then flush the
	// audit trail (deferred Close) before the pool goes away.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	processor.Stop()
	stopBackground()
}
