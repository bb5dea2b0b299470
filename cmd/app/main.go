// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"recurring-billing/internal/config"
	"recurring-billing/internal/domain/ports/adapter"
	payAdapters "recurring-billing/internal/infra/adapters/payment"
	pg "recurring-billing/internal/infra/db/postgres"
	"recurring-billing/internal/infra/logging"
	"recurring-billing/internal/infra/metrics"
	red "recurring-billing/internal/infra/redis"
	"recurring-billing/internal/infra/sched"
	"recurring-billing/internal/infra/web"
	"recurring-billing/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted ids)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPlanRepo(pool), redisClient, cfg.Redis.TTL, logger)
	attemptRepo := pg.NewBillingAttemptRepo(pool)
	jobRepo := pg.NewBillingJobRepo(pool)

	// ---- Payment gateway ----
	simOpts := payAdapters.DefaultSimulatedOptions()
	simOpts.SuccessRate = cfg.Gateway.SuccessRate
	simOpts.TimeoutRate = cfg.Gateway.TimeoutRate
	simOpts.MinLatency = cfg.Gateway.MinLatency
	simOpts.MaxLatency = cfg.Gateway.MaxLatency
	simOpts.Stall = cfg.Billing.GatewayTimeout + time.Second
	var gateway adapter.PaymentGateway = payAdapters.NewSimulatedGateway(simOpts, logger)
	if cfg.Gateway.RateLimit > 0 || cfg.Gateway.MaxConcurrent > 0 {
		gateway = payAdapters.NewLimitedGateway(gateway, cfg.Gateway.RateLimit, cfg.Gateway.Burst, cfg.Gateway.MaxConcurrent)
	}

	// ---- Use cases ----
	clock := adapter.SystemClock{}
	executor := usecase.NewAttemptExecutor(gateway, attemptRepo, subRepo, tm, clock, cfg.Billing.GatewayTimeout, logger)
	tracker := usecase.NewJobTracker(jobRepo, clock, logger)
	policy := usecase.BatchPolicy{
		BatchSize:        cfg.Billing.BatchSize,
		ConcurrencyLimit: cfg.Billing.ConcurrencyLimit,
		InterBatchDelay:  cfg.Billing.InterBatchDelay,
	}
	billingUC, err := usecase.NewBillingUseCase(subRepo, jobRepo, planRepo, executor, tracker, policy, clock, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("billing service")
	}

	// ---- HTTP ----
	srv := web.NewServer(billingUC, red.NewRateLimiter(redisClient), web.Options{
		RequestTimeout: cfg.HTTP.RequestTimeout,
		TriggerLimit:   cfg.HTTP.TriggerLimit,
		TriggerWindow:  cfg.HTTP.TriggerWindow,
	}, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		pg.ReportPoolStats(gctx, pool, 15*time.Second, logger)
		return nil
	})
	g.Go(func() error {
		_ = sched.NewJobReaper(billingUC, cfg.Billing.ReapInterval, cfg.Billing.StaleJobAfter, logger).Run(gctx)
		return nil
	})
	if cfg.Billing.CycleInterval > 0 {
		worker := sched.NewCycleWorker(cfg.Billing.CycleInterval, cfg.Billing.CycleLockTTL, billingUC, red.NewLocker(redisClient), logger)
		g.Go(func() error {
			_ = worker.Run(gctx)
			return nil
		})
	}

	// ---- Graceful shutdown ----
	<-gctx.Done()
	logger.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := billingUC.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("billing jobs did not drain in time")
	}
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("service stopped with error")
	}
	logger.Info().Msg("bye")
}
