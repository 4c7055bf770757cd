package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/config"
	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/handler"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/cache"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/evolution"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/observability"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/queue"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/wa-groups-bfa-go/internal/port"
	"github.com/boddenberg/wa-groups-bfa-go/internal/service"
	"github.com/boddenberg/wa-groups-bfa-go/internal/worker"

	"go.uber.org/zap"
)

const (
	localQueueSize = 1000
	schedulerBatch = 100
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("evolution_api_url", cfg.EvolutionAPIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Duration("pairing_poll_interval", cfg.PairingPollInterval),
		zap.Duration("pairing_session_ttl", cfg.PairingSessionTTL),
		zap.Bool("scheduler_enabled", cfg.SchedulerEnabled),
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.Bool("amqp", cfg.AMQPURL != ""),
	)

	if cfg.SupabaseURL == "" {
		logger.Fatal("SUPABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "wa-groups-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	gatewayCfg := resilienceCfg
	gatewayCfg.MaxRetries = cfg.EvolutionMaxRetries

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	db := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		resilience.NewCircuitBreaker("supabase", logger),
		resilienceCfg,
		logger,
	)

	evo := evolution.New(httpClient, cfg.EvolutionAPIURL, cfg.EvolutionAPIKey, cfg.EvolutionIntegration, gatewayCfg, metrics, logger)
	gateways := func(creds domain.GatewayCredentials) port.Gateway {
		if creds.BaseURL == "" && creds.APIKey == "" {
			return evo
		}
		return evo.WithCredentials(creds.BaseURL, creds.APIKey)
	}

	probes := []handler.HealthProbe{{Name: "supabase", Check: db.Ping}}

	// --- Cache & scheduler lock ---
	var infoCache port.Cache[*domain.InstanceInfo]
	var schedulerLock worker.Locker
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()

		infoCache = cache.NewRedis[*domain.InstanceInfo](rdb, "instance-info:", cfg.CacheTTL, logger)
		schedulerLock = cache.NewLock(rdb, "wa-groups:scheduler", cfg.SchedulerInterval)
		probes = append(probes, handler.HealthProbe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	} else {
		mem := cache.New[*domain.InstanceInfo](cfg.CacheTTL)
		defer mem.Close()
		infoCache = mem
	}

	// --- Services ---
	notifications := service.NewNotificationService(db, logger)
	connections := service.NewConnectionService(db, db, gateways, infoCache, notifications, metrics, logger)
	pairing := service.NewPairingService(connections, notifications, metrics, service.PairingConfig{
		PollInterval: cfg.PairingPollInterval,
		SessionTTL:   cfg.PairingSessionTTL,
	}, logger)
	groups := service.NewGroupService(db, db, db, connections, notifications, logger)
	messages := service.NewMessageService(db, db, db, connections, nil, notifications, metrics, logger)
	authSvc := service.NewAuthService(db, db, cfg.JWTSecret, cfg.JWTAccessTTL, logger)
	admin := service.NewAdminService(db, db, db, db, logger)
	dashboard := service.NewDashboardService(service.DashboardStores{
		Connections:   db,
		Groups:        db,
		Messages:      db,
		Notifications: db,
		Companies:     db,
		Plans:         db,
		Knowledge:     db,
	}, logger)

	// --- Dispatch ---
	// consumers outlive ctx so a closing local queue can drain
	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()

	sender := worker.NewSender(messages, cfg.SendRatePerSecond, cfg.SendBurst, logger)
	var closeQueue func() error
	if cfg.AMQPURL != "" {
		q, err := queue.NewAMQP(cfg.AMQPURL, cfg.DispatchQueue, resilienceCfg, logger)
		if err != nil {
			logger.Fatal("failed to connect to amqp", zap.Error(err))
		}
		if err := q.Consume(workCtx, sender.Handle); err != nil {
			logger.Fatal("failed to start amqp consumer", zap.Error(err))
		}
		messages.SetQueue(q)
		closeQueue = q.Close
		probes = append(probes, handler.HealthProbe{Name: "amqp", Check: q.Ping})
	} else {
		q := worker.NewLocalQueue(localQueueSize, cfg.DispatchWorkers, resilienceCfg, logger)
		if err := q.Consume(workCtx, sender.Handle); err != nil {
			logger.Fatal("failed to start local dispatch queue", zap.Error(err))
		}
		messages.SetQueue(q)
		closeQueue = q.Close
	}

	var background sync.WaitGroup
	if cfg.SchedulerEnabled {
		scheduler := worker.NewScheduler(messages, schedulerLock, cfg.SchedulerInterval, schedulerBatch, logger)
		background.Add(1)
		go func() {
			defer background.Done()
			scheduler.Run(ctx)
		}()
	}

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Auth:          authSvc,
		Connections:   connections,
		Pairing:       pairing,
		Groups:        groups,
		Messages:      messages,
		Notifications: notifications,
		Dashboard:     dashboard,
		Admin:         admin,
		Probes:        probes,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	background.Wait()
	pairing.Close()
	if err := closeQueue(); err != nil {
		logger.Warn("failed to close dispatch queue", zap.Error(err))
	}
	stopWork()

	logger.Info("server stopped")
}
