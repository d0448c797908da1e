package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schedfy/internal/config"
	"schedfy/internal/database"
	"schedfy/internal/domain"
	"schedfy/internal/google"
	"schedfy/internal/logging"
	"schedfy/internal/metrics"
	"schedfy/internal/models"
	"schedfy/internal/notify"
	"schedfy/internal/repository"
	"schedfy/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	loc, err := time.LoadLocation(cfg.Booking.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	notifier := initNotifier(cfg, &logger)
	sheets := initSheets(cfg, loc, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	w := worker.NewSyncWorker(db, notifier, sheets, redisClient, worker.RetryPolicy{}, &logger).
		WithBookingSource(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Rebuild the sheet mirror on boot so it catches up after downtime.
	if sheets != nil {
		now := time.Now()
		from := now.AddDate(0, -models.DefaultExportRangeMonthsBefore, 0)
		to := now.AddDate(0, models.DefaultExportRangeMonthsAfter, 0)
		if err := w.EnqueueResync(ctx, 1, from, to); err != nil {
			logger.Warn().Err(err).Msg("failed to schedule sheet resync")
		}
	}

	logger.Info().Msg("worker started")
	w.Start(ctx)
	logger.Info().Msg("worker stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "worker-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, polling database only")
		_ = client.Close()
		return nil
	}
	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.Notifier {
	if cfg.Notifications.TelegramToken == "" || cfg.Notifications.TelegramChatID == 0 {
		logger.Warn().Msg("telegram notifications disabled")
		return nil
	}

	notifier, err := notify.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		return nil
	}
	return notifier
}

func initSheets(cfg *config.Config, loc *time.Location, logger *zerolog.Logger) domain.SheetsWriter {
	if cfg.Google.CredentialsFile == "" || cfg.Google.BookingsSpreadsheetID == "" {
		return nil
	}

	sheets, err := google.NewSheetsService(context.Background(), cfg.Google.CredentialsFile, cfg.Google.BookingsSpreadsheetID, loc)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheets.TestConnection(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("google sheets connection test failed")
	} else {
		logger.Info().Msg("google sheets connected")
	}
	return sheets
}
