package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/crewboard/crewboard-backend/pkg/db/models"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	"github.com/google/uuid"
)

const (
	pendingUploadRetentionDays = 7
	pendingUploadBatchSize     = 500
)

type pendingUploadRepo interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Media, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type blobDeleter interface {
	DeleteObject(ctx context.Context, bucket, object string) error
}

type sessionEvictor interface {
	EvictStaleSessions(ctx context.Context) int
}

// PendingUploadCleanupJobParams configure the stale upload sweeper.
type PendingUploadCleanupJobParams struct {
	Logger        *logger.Logger
	MediaRepo     pendingUploadRepo
	Blobs         blobDeleter
	Sessions      sessionEvictor
	RetentionDays int
}

// NewPendingUploadCleanupJob sweeps media rows stuck in pending past the
// retention window: the browser began an upload but the object never
// finalized. Matching blobs are removed best-effort, and idle upload
// sessions are evicted alongside.
func NewPendingUploadCleanupJob(params PendingUploadCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.MediaRepo == nil {
		return nil, fmt.Errorf("media repository required")
	}
	if params.Blobs == nil {
		return nil, fmt.Errorf("blob deleter required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = pendingUploadRetentionDays
	}
	return &pendingUploadCleanupJob{
		logg:          params.Logger,
		repo:          params.MediaRepo,
		blobs:         params.Blobs,
		sessions:      params.Sessions,
		retentionDays: retention,
		now:           time.Now,
	}, nil
}

type pendingUploadCleanupJob struct {
	logg          *logger.Logger
	repo          pendingUploadRepo
	blobs         blobDeleter
	sessions      sessionEvictor
	retentionDays int
	now           func() time.Time
}

func (j *pendingUploadCleanupJob) Name() string { return "pending-upload-cleanup" }

func (j *pendingUploadCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retentionDays) * 24 * time.Hour)

	rows, err := j.repo.ListPendingBefore(ctx, cutoff, pendingUploadBatchSize)
	if err != nil {
		return fmt.Errorf("query pending media: %w", err)
	}

	var deleted, blobFailures int
	for _, row := range rows {
		if err := j.repo.Delete(ctx, row.ID); err != nil {
			return fmt.Errorf("delete pending media row: %w", err)
		}
		deleted++
		if row.StorageKey == "" {
			continue
		}
		if err := j.blobs.DeleteObject(ctx, "", row.StorageKey); err != nil {
			blobFailures++
			j.logg.Warn(j.logg.WithMediaID(ctx, row.ID.String()), "blob deletion failed during cleanup")
		}
	}

	evicted := 0
	if j.sessions != nil {
		evicted = j.sessions.EvictStaleSessions(ctx)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"retention_days":   j.retentionDays,
		"rows_deleted":     deleted,
		"blob_failures":    blobFailures,
		"sessions_evicted": evicted,
	})
	j.logg.Info(logCtx, "pending upload cleanup complete")
	return nil
}
