package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/lanternhealth/clinic-concierge/internal/api/router"
	"github.com/lanternhealth/clinic-concierge/internal/config"
	"github.com/lanternhealth/clinic-concierge/internal/intent"
	"github.com/lanternhealth/clinic-concierge/internal/observability/metrics"
	"github.com/lanternhealth/clinic-concierge/internal/patients"
	"github.com/lanternhealth/clinic-concierge/internal/scheduling"
	"github.com/lanternhealth/clinic-concierge/internal/session"
	"github.com/lanternhealth/clinic-concierge/internal/workflow"
	"github.com/lanternhealth/clinic-concierge/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"memory_stores", cfg.UseMemoryStores,
	)

	ctx := context.Background()

	var (
		sessions    session.Store
		ledger      scheduling.Ledger
		patientRepo patients.Repository
	)

	if cfg.UseMemoryStores {
		memSessions := session.NewMemoryStore(cfg.SessionIdleTimeout, cfg.SessionSweepInterval)
		defer memSessions.Close()
		sessions = memSessions
		ledger = scheduling.NewMemoryLedger()
		patientRepo = patients.NewInMemoryRepository()
	} else {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}

		redisOpts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("redis ping failed", "error", err)
			os.Exit(1)
		}

		sessions = session.NewRedisStore(redisClient, cfg.SessionIdleTimeout)
		ledger = scheduling.NewPgLedger(pool)
		patientRepo = patients.NewPostgresRepository(pool)
	}

	registry := prometheus.NewRegistry()
	workflowMetrics := metrics.NewWorkflowMetrics(registry)

	normalizer := intent.NewOpenAINormalizer(
		cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel,
		logger.Named("intent"),
		intent.WithTemperature(float32(cfg.LLMTemperature)),
		intent.WithTimeout(cfg.LLMTimeout),
	)

	resolver := patients.NewResolver(patientRepo)
	engine := workflow.NewEngine(
		sessions, resolver, patientRepo, ledger, normalizer,
		logger.Named("workflow"), workflowMetrics,
		workflow.WithSearchDays(cfg.ScheduleSearchDays),
		workflow.WithMaxOptions(cfg.MaxOptions),
	)

	r := router.New(&router.Config{
		Logger:            logger,
		WorkflowHandler:   workflow.NewHandler(engine, logger.Named("workflow.http")),
		SchedulingHandler: scheduling.NewHandler(ledger, logger.Named("scheduling.http")),
		MetricsHandler:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
