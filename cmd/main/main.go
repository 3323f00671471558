package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aiworkforme/outreach-engine/internal/collab"
	"github.com/aiworkforme/outreach-engine/internal/collab/noop"
	"github.com/aiworkforme/outreach-engine/internal/config"
	"github.com/aiworkforme/outreach-engine/internal/dispatch"
	"github.com/aiworkforme/outreach-engine/internal/healthcheck"
	"github.com/aiworkforme/outreach-engine/internal/intake"
	"github.com/aiworkforme/outreach-engine/internal/mcpcache"
	"github.com/aiworkforme/outreach-engine/internal/media"
	"github.com/aiworkforme/outreach-engine/internal/observer"
	"github.com/aiworkforme/outreach-engine/internal/orchestrator"
	"github.com/aiworkforme/outreach-engine/internal/policy"
	"github.com/aiworkforme/outreach-engine/internal/scheduler"
	"github.com/aiworkforme/outreach-engine/internal/storage"
	"github.com/aiworkforme/outreach-engine/internal/tenant"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
	"github.com/aiworkforme/outreach-engine/pkg/utils"
)

// collaborators bundles the externally implemented services the pipeline
// calls out to. Development profiles run on the noop stand-ins; production
// builds replace them at wiring time.
type collaborators struct {
	generator collab.Generator
	assembler collab.ContextAssembler
	sender    collab.ChannelSender
	fetcher   collab.MediaFetcher
	extractor collab.Extractor
}

// contextCacheTTL bounds how long assembled retrieval context is reused.
const contextCacheTTL = 5 * time.Minute

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting Outreach Engine",
		zap.String("environment", cfg.Environment),
		zap.String("tenant_id", cfg.Tenant.ID),
		zap.String("nats_url", cfg.NATS.URL),
	)

	// Initialize repositories
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	// External collaborators. Real adapters are registered here in
	// production builds; everything else runs on the noop stand-ins.
	collabs := buildCollaborators(cfg)

	// Core pipeline components
	evaluator := policy.NewEvaluator(postgresRepo, postgresRepo, cfg.Policy.SensitiveTerms)
	recorder := policy.NewRecorder(postgresRepo)
	assembler := mcpcache.NewCachingAssembler(collabs.assembler, contextCacheTTL)
	preparer := media.NewPreparer(collabs.fetcher, collabs.extractor, cfg.Media.MaxFetchBytes, cfg.Media.MaxExtractChars)

	orch := orchestrator.NewOrchestrator(
		evaluator,
		recorder,
		assembler,
		collabs.generator,
		postgresRepo,
		postgresRepo,
		postgresRepo,
		postgresRepo,
	)

	// Wake listener is optional; intake falls back to polling without it.
	var wakeListener *intake.WakeListener
	if cfg.NATS.URL != "" {
		wakeListener, err = intake.NewWakeListener(cfg.NATS.URL, cfg.NATS.WakeSubject, cfg.Intake.QueueSize)
		if err != nil {
			logger.Log.Warn("Failed to connect wake listener, intake will poll only", zap.Error(err))
			wakeListener = nil
		}
	}

	intakeWorker, err := intake.NewWorker(
		cfg.Intake,
		cfg.Tenant.ID,
		postgresRepo,
		postgresRepo,
		postgresRepo,
		preparer,
		orch,
		wakeListener,
		logger.Log,
	)
	if err != nil {
		logger.Log.Fatal("Failed to initialize intake worker", zap.Error(err))
	}

	dispatchWorker := dispatch.NewWorker(
		cfg.Dispatch,
		cfg.Tenant.ID,
		postgresRepo,
		postgresRepo,
		postgresRepo,
		collabs.sender,
		logger.Log,
	)

	sched := scheduler.NewScheduler(
		cfg.Scheduler,
		cfg.Tenant.ID,
		postgresRepo,
		postgresRepo,
		orch,
		logger.Log,
	)

	// Health check server with dependency probes
	readiness := map[string]healthcheck.ReadinessCheck{
		"postgres": postgresRepo.Ping,
	}
	if wakeListener != nil {
		readiness["nats"] = func(context.Context) error {
			if !wakeListener.Active() {
				return errors.New("wake listener not connected")
			}
			return nil
		}
	}
	healthServer := healthcheck.NewServer(strconv.Itoa(cfg.Server.Port), logger.Log, readiness)

	if metricsEnabled {
		healthServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled for environment", zap.String("environment", cfg.Environment))
	}

	healthServer.Start()

	logger.Log.Info("Health check endpoints available",
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Server.Port)),
	)

	// Every worker runs under the service tenant.
	mainCtx, mainCancel := context.WithCancel(tenant.WithTenantID(context.Background(), cfg.Tenant.ID))
	defer mainCancel()

	var runWg sync.WaitGroup
	runWg.Add(2)
	utils.SafeGo(func() {
		defer runWg.Done()
		intakeWorker.Run(mainCtx)
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("Panic in intake worker loop", zap.Any("panic", r), zap.ByteString("stack", stack))
		runWg.Done()
	})
	utils.SafeGo(func() {
		defer runWg.Done()
		dispatchWorker.Run(mainCtx)
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("Panic in dispatch worker loop", zap.Any("panic", r), zap.ByteString("stack", stack))
		runWg.Done()
	})

	if err := sched.Start(mainCtx); err != nil {
		logger.Log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	mainCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		tenant.WithTenantID(context.Background(), cfg.Tenant.ID), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	numComponents := 4
	wg.Add(numComponents)

	// Stop the worker loops and the intake pool
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping worker loops")
		start := time.Now()
		runWg.Wait()
		intakeWorker.Stop()
		logger.Log.Info("[shutdown] Worker loops stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping worker loops",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Stop the scheduler
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping scheduler")
		start := time.Now()
		sched.Stop()
		logger.Log.Info("[shutdown] Scheduler stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping scheduler",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown health check server (includes metrics if enabled)
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping health check server")
		start := time.Now()
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping health check server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Health check server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping health check server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close database connection
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		start := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing database connection",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Wait with a timeout for all components to shut down
	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Outreach Engine shutdown complete")
}

// buildCollaborators wires the external collaborator set. Dev and staging
// run entirely on the noop stand-ins.
func buildCollaborators(cfg *config.Config) collaborators {
	if cfg.Environment != "production" {
		logger.Log.Info("Using noop collaborators", zap.String("environment", cfg.Environment))
	}
	return collaborators{
		generator: noop.Generator{},
		assembler: noop.ContextAssembler{},
		sender:    noop.ChannelSender{},
		fetcher:   noop.MediaFetcher{},
		extractor: noop.Extractor{},
	}
}

// Initialize PostgreSQL repository
func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}
