package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURI string

	// Engine knobs.
	TickInterval       time.Duration
	Cooldown           time.Duration
	ShutdownGrace      time.Duration
	DefaultSnooze      time.Duration
	DispatchWorkers    int
	LeaderboardMaxPage int

	// Delivery.
	TelegramToken   string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string

	// Optional duplicate-suppression cache.
	RedisURL string
}

func Load() (*Config, error) {
	// .env file is optional in production.
	_ = godotenv.Load()

	tickInterval, err := getDurationOrDefault("TICK_INTERVAL", 60*time.Second)
	if err != nil {
		return nil, err
	}
	cooldown, err := getDurationOrDefault("COOLDOWN", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	grace, err := getDurationOrDefault("SHUTDOWN_GRACE", 30*time.Second)
	if err != nil {
		return nil, err
	}
	snooze, err := getDurationOrDefault("DEFAULT_SNOOZE", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	workers, err := getIntOrDefault("DISPATCH_WORKERS", 8)
	if err != nil {
		return nil, err
	}
	maxPage, err := getIntOrDefault("LEADERBOARD_MAX_PAGE", 100)
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabaseURI:        os.Getenv("DATABASE_URI"),
		TickInterval:       tickInterval,
		Cooldown:           cooldown,
		ShutdownGrace:      grace,
		DefaultSnooze:      snooze,
		DispatchWorkers:    workers,
		LeaderboardMaxPage: maxPage,
		TelegramToken:      os.Getenv("TELEGRAM_TOKEN"),
		VAPIDPublicKey:     os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey:    os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubscriber:    getEnvOrDefault("VAPID_SUBSCRIBER", "mailto:reminders@habitpulse.dev"),
		RedisURL:           os.Getenv("REDIS_URL"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
