package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/CrewForge/internal/adapter/bus"
	"github.com/Strob0t/CrewForge/internal/adapter/fsstore"
	cfhttp "github.com/Strob0t/CrewForge/internal/adapter/http"
	"github.com/Strob0t/CrewForge/internal/adapter/litellm"
	"github.com/Strob0t/CrewForge/internal/adapter/mcpexec"
	cfnats "github.com/Strob0t/CrewForge/internal/adapter/nats"
	cfotel "github.com/Strob0t/CrewForge/internal/adapter/otel"
	"github.com/Strob0t/CrewForge/internal/adapter/postgres"
	"github.com/Strob0t/CrewForge/internal/adapter/ristretto"
	"github.com/Strob0t/CrewForge/internal/adapter/ws"
	"github.com/Strob0t/CrewForge/internal/config"
	"github.com/Strob0t/CrewForge/internal/git"
	"github.com/Strob0t/CrewForge/internal/logger"
	"github.com/Strob0t/CrewForge/internal/resilience"
	"github.com/Strob0t/CrewForge/internal/secrets"
	"github.com/Strob0t/CrewForge/internal/service"
)

const cacheSize = 64 << 20 // 64 MB

func main() {
	if len(os.Args) > 1 && os.Args[1] == "set-key" {
		if err := runSetKey(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "set-key:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"tick_interval", cfg.Scheduler.TickInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if cfg.Telemetry.Enabled {
		shutdown, err := cfotel.Init(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	store := postgres.NewStore(pool)
	eventBus := bus.New()

	artifacts, err := fsstore.New(cfg.Artifacts.Dir)
	if err != nil {
		return fmt.Errorf("artifact store: %w", err)
	}

	cache, err := ristretto.New(cacheSize)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	vault, err := secrets.Open(cfg.Secrets.KeyFile, cfg.Secrets.MasterKey)
	if err != nil {
		return fmt.Errorf("secrets vault: %w", err)
	}

	gitPool := git.NewPool(cfg.Git.MaxConcurrent)

	invoker := litellm.NewInvoker(cfg.Provider.URL, vault.Get("litellm"))
	invoker.SetBreaker(resilience.NewBreaker(5, 30*time.Second))

	mcpExec := mcpexec.New(nil)
	defer mcpExec.Close()

	hub := ws.NewHub(log)
	go hub.Run(ctx, eventBus)

	if cfg.NATS.URL != "" {
		mirror, err := cfnats.Connect(ctx, cfg.NATS.URL, log)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = mirror.Close() }()
		go mirror.Run(ctx, eventBus)
		log.Info("nats mirror connected", "url", cfg.NATS.URL)
	}

	// --- Services ---
	settingsSvc := service.NewSettingsService(store, cache, log)
	teamSvc := service.NewTeamService(store, cache, log)
	memorySvc := service.NewMemoryService(store, eventBus, log)
	runtime := service.NewAgentRuntime(store, invoker, artifacts, memorySvc, eventBus, log, cfg.Provider.CostPerCall)
	broker := service.NewToolBroker(store, eventBus, log, metrics)
	dispatcher := service.NewDispatcher(store, broker, eventBus, log, gitPool, artifacts, mcpExec)
	engine := service.NewJobEngine(store, eventBus, log, cfg.Engine.MaxAttempts, cfg.Engine.BackoffCap)
	orchestrator := service.NewOrchestrator(store, engine, runtime, artifacts, teamSvc, settingsSvc, eventBus, log, metrics, nil)
	approvalSvc := service.NewApprovalService(store, eventBus, log)
	chatSvc := service.NewChatService(store, artifacts, runtime, dispatcher, settingsSvc, teamSvc, eventBus, log)

	workerLoop := service.NewWorkerLoop(store, artifacts, eventBus, runtime, dispatcher, settingsSvc, teamSvc, log, metrics, cfg.Scheduler)
	managerLoop := service.NewManagerLoop(store, eventBus, runtime, dispatcher, settingsSvc, teamSvc, log, metrics, cfg.Scheduler)
	go workerLoop.Run(ctx)
	go managerLoop.Run(ctx)

	// --- HTTP ---
	handlers := &cfhttp.Handlers{
		Store:        store,
		Orchestrator: orchestrator,
		Chat:         chatSvc,
		Approvals:    approvalSvc,
		Settings:     settingsSvc,
		Teams:        teamSvc,
		Logger:       log,
	}

	r := chi.NewRouter()
	r.Use(cfhttp.RequestID)
	r.Use(cfhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Telemetry.Enabled {
		r.Use(cfotel.HTTPMiddleware(cfg.Logging.Service))
	}

	cfhttp.MountRoutes(r, handlers, hub.HandleWS)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
