package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/crewboard/crewboard-backend/api/routes"
	"github.com/crewboard/crewboard-backend/internal/gallery"
	"github.com/crewboard/crewboard-backend/internal/media"
	"github.com/crewboard/crewboard-backend/internal/users"
	"github.com/crewboard/crewboard-backend/pkg/config"
	"github.com/crewboard/crewboard-backend/pkg/db"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	"github.com/crewboard/crewboard-backend/pkg/metrics"
	"github.com/crewboard/crewboard-backend/pkg/migrate"
	"github.com/crewboard/crewboard-backend/pkg/redis"
	"github.com/crewboard/crewboard-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	galleryMetrics := metrics.NewGalleryMetrics(prometheus.DefaultRegisterer)

	notifier, err := gallery.NewNotifier(redisClient, cfg.Gallery.ChangeChannel)
	if err != nil {
		logg.Error(context.Background(), "failed to create change notifier", err)
		os.Exit(1)
	}

	mediaRepo := media.NewRepository(dbClient.DB())
	usersRepo := users.NewRepository(dbClient.DB())
	sessions := media.NewSessionStore(cfg.Media.SessionTTL)

	resolver, err := media.NewResolver(mediaRepo, cfg.Media, logg, galleryMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create resolver", err)
		os.Exit(1)
	}

	mediaService, err := media.NewService(mediaRepo, usersRepo, sessions, resolver, gcsClient, notifier, cfg.Media, cfg.GCS, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create media service", err)
		os.Exit(1)
	}

	feed, err := gallery.NewFeed(mediaRepo, notifier, cfg.Gallery.StreamLimit, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create gallery feed", err)
		os.Exit(1)
	}

	reconciler, err := gallery.NewReconciler(mediaRepo, cfg.Gallery.OverlayClearDelay, logg, galleryMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create ordering reconciler", err)
		os.Exit(1)
	}

	mutator, err := gallery.NewBatchMutator(mediaRepo, gcsClient, logg, galleryMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create batch mutator", err)
		os.Exit(1)
	}

	galleryService, err := gallery.NewService(feed, reconciler, mutator, notifier, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create gallery service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := galleryService.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "gallery feed loop stopped unexpectedly", err)
		}
	}()

	// The session store lives in this process, so the stale-session sweep has
	// to run here; the cron worker only covers the database side.
	go media.RunSessionEviction(ctx, mediaService, cfg.Media.SessionTTL, logg)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, gcsClient, mediaService, galleryService),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(logCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(logCtx, "api server shut down gracefully")
}
