package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/beaconbio/beacon/config"
	appmodel "github.com/beaconbio/beacon/internal/app/model"
	apprepository "github.com/beaconbio/beacon/internal/app/repository"
	appserver "github.com/beaconbio/beacon/internal/app/server"
	appservice "github.com/beaconbio/beacon/internal/app/service"
	"github.com/beaconbio/beacon/internal/infra/logger"
	infraNATS "github.com/beaconbio/beacon/internal/infra/nats"
	infraPostgres "github.com/beaconbio/beacon/internal/infra/postgres"
	infraPrometheus "github.com/beaconbio/beacon/internal/infra/prometheus"
	infraRedis "github.com/beaconbio/beacon/internal/infra/redis"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("postgres_user", cfg.Postgres.User),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("redis_port", cfg.Redis.Port),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int("nats_port", cfg.NATS.Port),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.Link{}, &appmodel.ClickEvent{}); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()

	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	linkRepo := apprepository.NewLinkRepository(gormDB)
	clickRepo := apprepository.NewClickEventRepository(gormDB)
	statsRepo := apprepository.NewStatsRepository(pool)

	publisher := appservice.NewClickPublisher(js)
	consumer := appservice.NewClickConsumer(js, redisClient, log)
	if err := consumer.Start(ctx); err != nil {
		log.Fatal("Failed to start click consumer", zap.Error(err))
	}

	tracking := appservice.NewTrackingService(linkRepo, clickRepo, publisher, log, appservice.TrackingConfig{
		DedupWindow:     cfg.Tracking.DedupWindow,
		RateLimitWindow: cfg.Tracking.RateLimitWindow,
		RateLimitMax:    cfg.Tracking.RateLimitMax,
		MaxRetries:      cfg.Tracking.MaxRetries,
		RetryBaseDelay:  cfg.Tracking.RetryBaseDelay,
	})
	analytics := appservice.NewAnalyticsService(statsRepo, linkRepo)

	server := appserver.New(appserver.Dependencies{
		Logger:    log,
		Redis:     redisClient,
		Tracking:  tracking,
		Analytics: analytics,
		Links:     linkRepo,
	})

	if err := server.Listen(":8080"); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
