package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"github.com/yueliao11/Donate-On-Flow/internal/adapter/repo"
	"github.com/yueliao11/Donate-On-Flow/internal/campaign"
	"github.com/yueliao11/Donate-On-Flow/internal/events"
	"github.com/yueliao11/Donate-On-Flow/internal/infra"
	"github.com/yueliao11/Donate-On-Flow/internal/telegram"
)

const announceQueue = "telegram-announcements"

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "bot")
	if cfg.TelegramBotToken == "" {
		logger.Fatal().Msg("bot: TELEGRAM_BOT_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	catalog := &campaign.Service{
		Projects:   repo.NewProjectRepository(runner),
		Milestones: repo.NewMilestoneRepository(runner),
		Donations:  repo.NewDonationRepository(runner),
		Stats:      repo.NewStatsRepository(runner),
		Logger:     logger.With().Str("component", "campaign").Logger(),
	}

	endpoint := tgbotapi.APIEndpoint
	if cfg.TelegramTestEnv {
		endpoint = "https://api.telegram.org/bot%s/test/%s"
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.TelegramBotToken, endpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: telegram login failed")
	}
	bot := telegram.NewBot(api, catalog, cfg.WebAppURL, logger.With().Str("component", "telegram").Logger())

	if cfg.AMQPURL != "" && cfg.TelegramChannelID != 0 {
		broker, err := events.Dial(cfg.AMQPURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot: amqp connection failed")
		}
		defer broker.Close()
		go consume(ctx, broker, bot.EventHandler(cfg.TelegramChannelID), logger)
	} else {
		logger.Info().Msg("bot: channel announcements disabled")
	}

	bot.Run(ctx, api)
	logger.Info().Msg("bot: stopped")
}

// consume relays announcements until ctx is done, reopening the channel after
// a broker side close.
func consume(ctx context.Context, broker *events.Broker, h events.Handler, logger infra.Logger) {
	keys := []string{events.KeyDonationConfirmed, events.KeyProjectCreated}
	for {
		err := broker.Consume(ctx, announceQueue, keys, h)
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("bot: consume stopped, retrying")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}
