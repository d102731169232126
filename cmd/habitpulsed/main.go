package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/habitpulse/habitpulse/internal/clock"
	"github.com/habitpulse/habitpulse/internal/config"
	"github.com/habitpulse/habitpulse/internal/database"
	"github.com/habitpulse/habitpulse/internal/dedup"
	"github.com/habitpulse/habitpulse/internal/delivery"
	"github.com/habitpulse/habitpulse/internal/engine"
	"github.com/habitpulse/habitpulse/internal/repository"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.DatabaseURI == "" {
		logger.Fatal("DATABASE_URI is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURI, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to database")

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations completed")

	reminderRepo := repository.NewReminderRepository(db)
	engagementRepo := repository.NewEngagementRepository(db)

	clk := clock.Real()

	// Duplicate-suppression cache is optional; the store's unique index
	// stays authoritative without it.
	var dupCache engine.DuplicateCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		dupCache = dedup.NewRedisCache(redis.NewClient(opts), 0)
		logger.Info("redis duplicate cache enabled")
	}

	var emitters delivery.Multi
	var tgAPI *tgbotapi.BotAPI
	if cfg.TelegramToken != "" {
		tgAPI, err = tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			logger.Fatal("failed to create telegram api", zap.Error(err))
		}
		emitters = append(emitters, delivery.NewTelegramEmitter(tgAPI, logger))
		logger.Info("telegram delivery enabled")
	}
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		pushRepo := repository.NewPushSubscriptionRepository(db)
		emitters = append(emitters, delivery.NewWebPushEmitter(
			pushRepo, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber, logger))
		logger.Info("web push delivery enabled")
	}
	if len(emitters) == 0 {
		emitters = append(emitters, delivery.NewLogEmitter(logger))
		logger.Warn("no delivery transport configured, logging dispatch intents only")
	}

	selector := engine.NewSelector(reminderRepo, cfg.Cooldown, logger)
	dispatcher := engine.NewDispatcher(reminderRepo, emitters, selector, clk,
		cfg.Cooldown, cfg.DispatchWorkers, logger)
	aggregator := engine.NewAggregator(engagementRepo, reminderRepo, dupCache, clk,
		cfg.DefaultSnooze, logger)
	leaderboard := engine.NewLeaderboardBuilder(engagementRepo, clk, cfg.LeaderboardMaxPage, logger)

	scheduler := engine.NewScheduler(dispatcher.RunPass, cfg.TickInterval, cfg.ShutdownGrace, logger)
	scheduler.Start(ctx)

	if tgAPI != nil {
		listener := delivery.NewTelegramListener(tgAPI, aggregator, leaderboard, clk, logger)
		go listener.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	scheduler.Stop()
	cancel()
}
