package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/crewboard/crewboard-backend/internal/gallery"
	"github.com/crewboard/crewboard-backend/internal/media"
	"github.com/crewboard/crewboard-backend/internal/media/consumer"
	"github.com/crewboard/crewboard-backend/pkg/config"
	"github.com/crewboard/crewboard-backend/pkg/db"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	"github.com/crewboard/crewboard-backend/pkg/migrate"
	"github.com/crewboard/crewboard-backend/pkg/pubsub"
	"github.com/crewboard/crewboard-backend/pkg/redis"
	"github.com/crewboard/crewboard-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gcs", err)
		os.Exit(1)
	}

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	notifier, err := gallery.NewNotifier(redisClient, cfg.Gallery.ChangeChannel)
	if err != nil {
		logg.Error(context.Background(), "failed to create change notifier", err)
		os.Exit(1)
	}

	mediaRepo := media.NewRepository(dbClient.DB())

	finalizeConsumer, err := consumer.NewConsumer(mediaRepo, notifier, pubsubClient.MediaSubscription(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create finalize consumer", err)
		os.Exit(1)
	}

	deletionConsumer, err := consumer.NewDeletionConsumer(mediaRepo, notifier, pubsubClient.MediaDeletionSubscription(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create deletion consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               dbClient,
		Redis:            redisClient,
		PubSub:           pubsubClient,
		FinalizeConsumer: finalizeConsumer,
		DeletionConsumer: deletionConsumer,
		GCS:              gcsClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}
