package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crewboard/crewboard-backend/internal/media/consumer"
	"github.com/crewboard/crewboard-backend/pkg/config"
	"github.com/crewboard/crewboard-backend/pkg/db"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	"github.com/crewboard/crewboard-backend/pkg/pubsub"
	"github.com/crewboard/crewboard-backend/pkg/redis"
	"github.com/crewboard/crewboard-backend/pkg/storage/gcs"
)

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               *db.Client
	Redis            *redis.Client
	PubSub           *pubsub.Client
	FinalizeConsumer *consumer.Consumer
	DeletionConsumer *consumer.DeletionConsumer
	GCS              *gcs.Client
}

// Service runs the storage-event consumers that keep media records in step
// with the bucket: object finalize flips pending rows to uploaded, object
// delete tombstones rows whose blobs disappeared out-of-band.
type Service struct {
	cfg              *config.Config
	logg             *logger.Logger
	db               *db.Client
	redis            *redis.Client
	pubsub           *pubsub.Client
	finalizeConsumer *consumer.Consumer
	deletionConsumer *consumer.DeletionConsumer
	gcs              *gcs.Client
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.FinalizeConsumer == nil {
		return nil, errors.New("finalize consumer is required")
	}
	if params.DeletionConsumer == nil {
		return nil, errors.New("deletion consumer is required")
	}
	if params.GCS == nil {
		return nil, errors.New("gcs client is required")
	}

	return &Service{
		cfg:              params.Config,
		logg:             params.Logger,
		db:               params.DB,
		redis:            params.Redis,
		pubsub:           params.PubSub,
		finalizeConsumer: params.FinalizeConsumer,
		deletionConsumer: params.DeletionConsumer,
		gcs:              params.GCS,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "gcs", s.gcs.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.finalizeConsumer.Run(groupCtx)
	})
	group.Go(func() error {
		return s.deletionConsumer.Run(groupCtx)
	})

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			return <-done
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "consumer stopped unexpectedly", err)
			}
			return err
		case <-ticker.C:
		}
	}
}
