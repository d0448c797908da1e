package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schedfy/internal/api"
	"schedfy/internal/config"
	"schedfy/internal/database"
	"schedfy/internal/events"
	"schedfy/internal/export"
	"schedfy/internal/logging"
	"schedfy/internal/metrics"
	"schedfy/internal/models"
	"schedfy/internal/repository"
	"schedfy/internal/service"
	"schedfy/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
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

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	drafts := initDrafts(cfg, redisClient, &logger)
	bus := events.NewEventBus()
	subscribeEventLog(bus, &logger)

	// The API only enqueues sync work; the worker binary drains it.
	syncWorker := worker.NewSyncWorker(db, nil, nil, redisClient, worker.RetryPolicy{}, &logger)

	availability := service.NewAvailabilityService(db, cfg.Booking, loc, &logger)
	if redisClient != nil {
		availability.WithSlotCache(repository.NewRedisSlotCache(redisClient, 5*time.Minute))
	}
	bookings := service.NewBookingService(db, availability, drafts, bus, syncWorker, loc,
		cfg.Booking.MaxBookingDays, cfg.Booking.MinAdvanceMinutes, &logger)
	catalog := service.NewCatalogService(db, &logger)
	insights := service.NewInsightsService(db, loc, &logger)
	exporter := export.NewExcelExporter(db, loc, &logger)

	httpServer := api.NewHTTPServer(cfg.API, catalog, availability, bookings, insights, exporter, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	go func() {
		if !cfg.API.HTTP.Enabled {
			logger.Warn().Msg("HTTP API is disabled in config")
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
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
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadServices merges the catalog file into the config-declared services.
// The file wins on ID collisions.
func loadServices(cfg *config.Config, logger *zerolog.Logger) ([]models.Service, error) {
	services := append([]models.Service(nil), cfg.Services...)

	servicesPath := os.Getenv("SERVICES_PATH")
	if servicesPath == "" {
		servicesPath = "configs/services.yaml"
	}

	data, err := os.ReadFile(servicesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return services, nil
		}
		return nil, fmt.Errorf("read services: %w", err)
	}

	var fileConfig struct {
		Services []models.Service `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parse services: %w", err)
	}

	byID := make(map[int64]int, len(services))
	for i := range services {
		byID[services[i].ID] = i
	}
	for _, svc := range fileConfig.Services {
		if i, ok := byID[svc.ID]; ok {
			services[i] = svc
		} else {
			services = append(services, svc)
		}
	}

	if err := config.ValidateServices(services); err != nil {
		return nil, err
	}
	logger.Info().Int("count", len(services)).Msg("service catalog loaded")
	return services, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	services, err := loadServices(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.SeedServices(context.Background(), services); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed services: %w", err)
	}
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func initDrafts(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) *repository.FailoverDraftRepository {
	ttl := cfg.Booking.DraftTTL()
	memory := repository.NewMemoryDraftRepository(ttl)
	if redisClient == nil {
		return repository.NewFailoverDraftRepository(memory, memory, logger)
	}
	primary := repository.NewRedisDraftRepository(redisClient, ttl)
	return repository.NewFailoverDraftRepository(primary, memory, logger)
}

func subscribeEventLog(bus *events.EventBus, logger *zerolog.Logger) {
	handler := func(event *events.Event) error {
		payload, err := events.DecodeBookingPayload(event)
		if err != nil {
			return err
		}
		logger.Info().
			Str("event", event.Type).
			Int64("booking_id", payload.BookingID).
			Str("reference", payload.Reference).
			Str("status", payload.Status).
			Msg("booking event")
		return nil
	}
	for _, eventType := range []string{
		events.EventBookingCreated,
		events.EventBookingConfirmed,
		events.EventBookingCancelled,
		events.EventBookingCompleted,
		events.EventBookingRescheduled,
	} {
		bus.Subscribe(eventType, handler)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
