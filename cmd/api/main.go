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

	"quickcourt/internal/api"
	"quickcourt/internal/config"
	"quickcourt/internal/database"
	"quickcourt/internal/domain"
	"quickcourt/internal/events"
	"quickcourt/internal/export"
	"quickcourt/internal/google"
	"quickcourt/internal/logging"
	"quickcourt/internal/metrics"
	"quickcourt/internal/payment"
	"quickcourt/internal/repository"
	"quickcourt/internal/service"
	"quickcourt/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
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
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	slots := buildAvailabilityStore(cfg, redisClient, &logger)

	venues := service.NewVenueCatalog(cfg.Venues, &logger)
	payments := payment.NewStub(&logger)
	eventBus := events.NewEventBus()

	// Синхронизация с Google Sheets опциональна
	var syncWorker domain.SyncWorker
	if sheetsService := initGoogleSheets(cfg, &logger); sheetsService != nil {
		sheetsWorker := worker.NewSheetsWorker(db, sheetsService, venues, redisClient, worker.RetryPolicy{}, &logger)
		go sheetsWorker.Start(ctx)
		syncWorker = sheetsWorker
	}

	reservations := service.NewReservation(
		slots,
		db,
		db,
		payments,
		venues,
		eventBus,
		syncWorker,
		cfg.Managers,
		cfg.Booking.MaxBookingDays,
		&logger,
	)

	var exporter api.BookingExporter
	if cfg.Exports.Path != "" {
		exporter = export.NewExporter(cfg.Exports.Path, reservations, venues, &logger)
	}

	httpServer := api.NewHTTPServer(cfg.API, reservations, venues, exporter, syncWorker, &logger)

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backup.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
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

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// buildAvailabilityStore attaches a redis-backed store with an in-memory
// fallback. Without redis, claims live only in process memory.
func buildAvailabilityStore(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.AvailabilityStore {
	memory := repository.NewMemoryAvailability()
	if redisClient == nil {
		logger.Warn().Msg("availability store running on memory only, claims are lost on restart")
		return memory
	}

	ttl := time.Duration(cfg.Booking.ClaimTTLHours) * time.Hour
	primary := repository.NewRedisAvailability(redisClient, ttl)
	return repository.NewFailoverAvailability(primary, memory, logger)
}

func initGoogleSheets(cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSimpleSheetsService(
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.BookingSpreadSheetID,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
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

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
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
