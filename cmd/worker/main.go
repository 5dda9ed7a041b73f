package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/yueliao11/Donate-On-Flow/internal/adapter/repo"
	"github.com/yueliao11/Donate-On-Flow/internal/campaign"
	"github.com/yueliao11/Donate-On-Flow/internal/chain"
	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/events"
	"github.com/yueliao11/Donate-On-Flow/internal/infra"
	"github.com/yueliao11/Donate-On-Flow/internal/jobs"
	"github.com/yueliao11/Donate-On-Flow/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")
	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("worker: REDIS_ADDR is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		broker, err := events.Dial(cfg.AMQPURL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: amqp unavailable, confirmations are not announced")
		} else {
			publisher = broker
		}
	}
	defer publisher.Close()

	svc := &campaign.Service{
		Projects:   repo.NewProjectRepository(runner),
		Milestones: repo.NewMilestoneRepository(runner),
		Donations:  repo.NewDonationRepository(runner),
		Stats:      repo.NewStatsRepository(runner),
		Events:     publisher,
		Metrics:    m,
		Logger:     logger.With().Str("component", "campaign").Logger(),
	}

	chains, err := newChains(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure chains")
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	onError := asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
		logger.Warn().Err(err).Str("type", task.Type()).Msg("worker: task failed")
	})
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:  cfg.WorkerConcurrency,
		Logger:       jobs.Logger{L: logger.With().Str("component", "asynq").Logger()},
		ErrorHandler: onError,
	})
	mux := asynq.NewServeMux()
	worker := &jobs.Worker{
		Ledger: svc,
		Chains: chains,
		Recipients: map[domain.Network]string{
			domain.NetworkFlow:    cfg.RecipientFlow,
			domain.NetworkFlowEVM: cfg.RecipientEVM,
		},
		Poll:    cfg.SealPollInterval,
		Timeout: cfg.SealTimeout,
		Metrics: m,
		Logger:  logger.With().Str("component", "verify").Logger(),
	}
	worker.Register(mux)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: jobs.Logger{L: logger.With().Str("component", "scheduler").Logger()},
	})
	if _, err := scheduler.Register(fmt.Sprintf("@every %s", cfg.ReconcileEvery), jobs.NewReconcileTask()); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to schedule reconcile")
	}

	queue := asynq.NewClient(redisOpt)
	defer queue.Close()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	sweeper := &jobs.Sweeper{
		Ledger:   svc,
		Verifier: jobs.NewClient(queue, 10, cfg.SealTimeout).WithInspector(inspector),
		Every:    time.Minute,
		Grace:    cfg.SealTimeout + time.Minute,
		Logger:   logger.With().Str("component", "sweeper").Logger(),
	}

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("worker: metrics server failed")
		}
	}()

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to start task server")
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to start scheduler")
	}
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("worker: sweeper stopped")
		}
	}()
	logger.Info().Dur("reconcile_every", cfg.ReconcileEvery).Msg("worker: started")

	<-ctx.Done()

	scheduler.Shutdown()
	srv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info().Msg("worker: stopped")
}

func newChains(ctx context.Context, cfg *infra.Config) (chain.Registry, error) {
	chains := chain.Registry{
		domain.NetworkFlow: chain.NewFlowClient(cfg.FlowAccessNode, &http.Client{Timeout: 15 * time.Second}),
	}
	if cfg.EVMRPCURL == "" {
		return chains, nil
	}
	evm, err := chain.DialEVM(ctx, cfg.EVMRPCURL, cfg.EVMConfirmations)
	if err != nil {
		return nil, err
	}
	chains[domain.NetworkFlowEVM] = evm
	return chains, nil
}
