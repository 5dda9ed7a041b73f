package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/yueliao11/Donate-On-Flow/internal/adapter/repo"
	"github.com/yueliao11/Donate-On-Flow/internal/campaign"
	"github.com/yueliao11/Donate-On-Flow/internal/chain"
	"github.com/yueliao11/Donate-On-Flow/internal/events"
	"github.com/yueliao11/Donate-On-Flow/internal/http/handlers"
	httpapi "github.com/yueliao11/Donate-On-Flow/internal/http/httpapi"
	"github.com/yueliao11/Donate-On-Flow/internal/infra"
	"github.com/yueliao11/Donate-On-Flow/internal/infra/credentials"
	"github.com/yueliao11/Donate-On-Flow/internal/infra/geoip"
	"github.com/yueliao11/Donate-On-Flow/internal/infra/jwks"
	"github.com/yueliao11/Donate-On-Flow/internal/jobs"
	"github.com/yueliao11/Donate-On-Flow/internal/metrics"
	"github.com/yueliao11/Donate-On-Flow/internal/providers/ai"
	"github.com/yueliao11/Donate-On-Flow/internal/storage"
	"github.com/yueliao11/Donate-On-Flow/internal/telegram"
	"github.com/yueliao11/Donate-On-Flow/internal/wallet"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	svc := &campaign.Service{
		Projects:   repo.NewProjectRepository(runner),
		Milestones: repo.NewMilestoneRepository(runner),
		Donations:  repo.NewDonationRepository(runner),
		Stats:      repo.NewStatsRepository(runner),
		Votes:      repo.NewVoteRepository(runner),
		Events:     publisher,
		Metrics:    m,
		Logger:     logger.With().Str("component", "campaign").Logger(),
	}
	if cfg.DonationVerify {
		if cfg.RedisAddr == "" {
			logger.Fatal().Msg("DONATION_VERIFY requires REDIS_ADDR")
		}
		queue := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer queue.Close()
		svc.Verifier = jobs.NewClient(queue, 10, cfg.SealTimeout)
	} else {
		logger.Warn().Msg("donation verification disabled, donations confirm on record")
	}

	wallets, err := newWalletManager(ctx, cfg, runner, m, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure wallet providers")
	}

	images, staticDir, err := newImages(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	enhancer := newEnhancer(ctx, cfg, credentials.NewStore(runner), m, logger)

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.GeoIPDBPath).Msg("geoip disabled")
	}
	defer resolver.Close()

	app := &handlers.App{
		Campaign: svc,
		Wallets:  wallets,
		Telegram: &telegram.Validator{
			BotToken: cfg.TelegramBotToken,
			BotID:    cfg.TelegramBotID,
			TestEnv:  cfg.TelegramTestEnv,
			MaxAge:   cfg.TelegramInitMaxAge,
		},
		AI:        enhancer,
		Images:    images,
		Metrics:   m,
		Logger:    logger,
		JWTSecret: cfg.JWTSecret,
		TokenTTL:  cfg.JWTTTL,
		Ping:      dbpool.Ping,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   "en",
		CountryLookup:   resolver.Lookup(),
		Metrics:         m.Handler(),
		StaticDir:       staticDir,
	})

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func newPublisher(cfg *infra.Config, logger zerolog.Logger) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.Nop{}
	}
	broker, err := events.Dial(cfg.AMQPURL, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("amqp unavailable, events are dropped")
		return events.Nop{}
	}
	return broker
}

func newWalletManager(ctx context.Context, cfg *infra.Config, runner infra.SQLExecutor, m *metrics.Metrics, logger zerolog.Logger) (*wallet.Manager, error) {
	flowClient := chain.NewFlowClient(cfg.FlowAccessNode, &http.Client{Timeout: 15 * time.Second})
	flow, err := wallet.NewFlowProvider(cfg.WalletAppIdentifier, cfg.FlowNetwork, flowClient)
	if err != nil {
		return nil, err
	}
	providers := []wallet.Provider{flow, wallet.NewOKXProvider(cfg.WalletAppIdentifier, cfg.EVMChainID)}
	if cfg.PrivyAppID != "" && cfg.PrivyJWKSURL != "" {
		verifier := jwks.NewVerifier(jwks.Options{
			URL:      cfg.PrivyJWKSURL,
			Issuer:   "privy.io",
			Audience: cfg.PrivyAppID,
		})
		providers = append(providers, wallet.NewPrivyProvider(cfg.WalletAppIdentifier, cfg.EVMChainID, verifier))
	}

	var challenges wallet.ChallengeStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, wallet challenges kept in memory")
		} else {
			challenges = wallet.NewRedisChallenges(rdb)
		}
	}

	return wallet.NewManager(wallet.ManagerOptions{
		AppID:        cfg.WalletAppIdentifier,
		Sessions:     repo.NewWalletSessionRepository(runner),
		Challenges:   challenges,
		ChallengeTTL: cfg.WalletChallengeTTL,
		SessionTTL:   cfg.JWTTTL,
		Metrics:      m,
		Logger:       logger.With().Str("component", "wallet").Logger(),
	}, providers...), nil
}

// newImages returns the upload service and, for local storage, the directory
// served under /static.
func newImages(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*storage.Images, string, error) {
	if cfg.MinioEnabled() {
		store, err := storage.NewMinioStore(ctx, storage.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioSSL,
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return storage.NewImages(store, cfg.MaxUploadBytes), "", nil
	}
	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		return nil, "", err
	}
	return storage.NewImages(store, cfg.MaxUploadBytes), store.BasePath(), nil
}

func newEnhancer(ctx context.Context, cfg *infra.Config, creds *credentials.Store, m *metrics.Metrics, logger zerolog.Logger) ai.Enhancer {
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	openAIKey, err := creds.Resolve(lookupCtx, credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load openai api key from store")
	}
	geminiKey, err := creds.Resolve(lookupCtx, credentials.ProviderGemini, cfg.GeminiAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load gemini api key from store")
	}
	if openAIKey == "" && geminiKey == "" {
		logger.Warn().Msg("no ai api key configured, using static enhancer")
	}

	return ai.New(ai.Config{
		Provider:      cfg.AIProvider,
		OpenAIAPIKey:  openAIKey,
		OpenAIModel:   cfg.OpenAIModel,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		GeminiAPIKey:  geminiKey,
		GeminiModel:   cfg.GeminiModel,
		GeminiBaseURL: cfg.GeminiBaseURL,
		OnFallback: func(provider, reason string, err error) {
			m.AIRequest(provider, "fallback")
			logger.Warn().Err(err).Str("provider", provider).Str("reason", reason).Msg("ai provider fell back")
		},
		OnWarning: func(reason, detail string) {
			logger.Warn().Str("reason", reason).Str("detail", detail).Msg("ai provider warning")
		},
	})
}
