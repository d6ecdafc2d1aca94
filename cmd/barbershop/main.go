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

	"barbershop/internal/api"
	"barbershop/internal/audit"
	"barbershop/internal/booking"
	"barbershop/internal/cache"
	"barbershop/internal/config"
	"barbershop/internal/db"
	"barbershop/internal/eligibility"
	"barbershop/internal/events"
	"barbershop/internal/metrics"
	"barbershop/internal/model"
	"barbershop/internal/notify"
	"barbershop/internal/reservation"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load(os.Getenv("BARBERSHOP_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}

	database, err := db.NewDB(cfg.Database.Path, loc, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus(logger)
	detachAudit := audit.NewRecorder(database, logger).Attach(bus)
	defer detachAudit()

	var (
		rdb       *redis.Client
		notifier  cache.Notifier
		snapshots cache.SnapshotCache
	)
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		notifier = cache.NewRedisNotifier(rdb, logger)
		snapshots = cache.NewRedisSnapshotCache(rdb, cfg.CacheTTL())
	} else {
		notifier = cache.NewLocalNotifier(bus)
		snapshots = cache.NewMemorySnapshotCache(cfg.CacheTTL())
	}

	engine := booking.NewEngine(database, snapshots, loc, logger)
	invalidations, err := notifier.Subscribe(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("subscribe to constraint changes")
	}
	go engine.Watch(ctx, invalidations)

	err = config.WatchShop(ctx, cfg.Shop.ConfigPath, cfg.ShopWatchInterval(), logger, func(shop *config.ShopConfig) {
		if err := database.SyncShopFromConfig(ctx, shop); err != nil {
			logger.Error().Err(err).Msg("failed to sync shop config")
			return
		}
		inv := cache.Invalidation{Reason: "config reload", At: time.Now()}
		if err := notifier.Publish(ctx, inv); err != nil {
			logger.Error().Err(err).Msg("failed to publish invalidation")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load shop config")
	}

	reservations := reservation.NewService(database, loc, logger,
		reservation.WithRetry(reservation.RetryConfig{
			MaxRetries:  cfg.Reservation.MaxRetries,
			RetryDelays: cfg.RetryDelays(),
		}),
		reservation.WithPublisher(bus),
	)
	checker := eligibility.NewChecker(database, loc, logger)

	if cfg.Telegram.BotToken != "" {
		staffNotifier, err := notify.New(cfg.Telegram.BotToken, cfg.Telegram.StaffChats, loc, logger)
		if err != nil {
			logger.Error().Err(err).Msg("telegram notifications disabled")
		} else {
			staffNotifier.SetRate(cfg.Telegram.MessagesPerSec)
			detach := staffNotifier.Attach(bus)
			defer detach()
			go staffNotifier.Run(ctx)

			if cfg.Telegram.AgendaEnabled {
				at, _ := model.ParseTimeOfDay(cfg.Telegram.AgendaTime) // validated by config.Load
				agenda := notify.NewAgenda(notify.AgendaConfig{
					At:        at,
					DaysAhead: cfg.Telegram.AgendaDaysAhead,
				}, database, staffNotifier, logger)
				go agenda.Run(ctx)
			}
		}
	}

	if cfg.Backup.Enabled {
		backups := db.NewBackupService(database, cfg.Backup.Path, cfg.BackupInterval(), cfg.Backup.RetentionDays, logger)
		go backups.Start(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(api.Config{
		Address:      cfg.API.Address,
		APIKey:       cfg.API.APIKey,
		BookingRPS:   cfg.API.BookingRateRPS,
		BookingBurst: cfg.API.BookingBurst,
	}, api.Deps{
		Engine:       engine,
		Reservations: reservations,
		Eligibility:  checker,
		Customers:    database,
		Admin:        database,
		History:      database,
		Notifier:     notifier,
	}, logger)

	logger.Info().Str("timezone", loc.String()).Msg("barbershop service started")
	if err := server.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
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
