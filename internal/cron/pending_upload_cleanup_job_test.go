package cron

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/crewboard/crewboard-backend/pkg/db/models"
	"github.com/crewboard/crewboard-backend/pkg/enums"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	"github.com/google/uuid"
)

type fakePendingRepo struct {
	rows    []models.Media
	deleted []uuid.UUID
	listErr error
}

func (f *fakePendingRepo) ListPendingBefore(_ context.Context, cutoff time.Time, _ int) ([]models.Media, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Media
	for _, row := range f.rows {
		if row.CreatedAt.Before(cutoff) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakePendingRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeBlobDeleter struct {
	deleted []string
	err     error
}

func (f *fakeBlobDeleter) DeleteObject(_ context.Context, _, object string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, object)
	return nil
}

type fakeEvictor struct {
	evicted int
}

func (f *fakeEvictor) EvictStaleSessions(context.Context) int { return f.evicted }

func pendingRow(age time.Duration) models.Media {
	id := uuid.New()
	return models.Media{
		ID:         id,
		Status:     enums.MediaStatusPending,
		StorageKey: "uploads/" + id.String() + "/a.png",
		CreatedAt:  time.Now().UTC().Add(-age),
	}
}

func TestPendingUploadCleanupDeletesStaleRows(t *testing.T) {
	repo := &fakePendingRepo{rows: []models.Media{
		pendingRow(10 * 24 * time.Hour),
		pendingRow(8 * 24 * time.Hour),
		pendingRow(time.Hour),
	}}
	blobs := &fakeBlobDeleter{}
	job, err := NewPendingUploadCleanupJob(PendingUploadCleanupJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "cron-test"}),
		MediaRepo: repo,
		Blobs:     blobs,
		Sessions:  &fakeEvictor{evicted: 2},
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(repo.deleted) != 2 {
		t.Fatalf("expected 2 rows deleted, got %d", len(repo.deleted))
	}
	if len(blobs.deleted) != 2 {
		t.Fatalf("expected 2 blob deletes, got %d", len(blobs.deleted))
	}
}

func TestPendingUploadCleanupToleratesBlobFailures(t *testing.T) {
	repo := &fakePendingRepo{rows: []models.Media{pendingRow(9 * 24 * time.Hour)}}
	blobs := &fakeBlobDeleter{err: fmt.Errorf("object store down")}
	job, err := NewPendingUploadCleanupJob(PendingUploadCleanupJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "cron-test"}),
		MediaRepo: repo,
		Blobs:     blobs,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("blob failures must not fail the job: %v", err)
	}
	if len(repo.deleted) != 1 {
		t.Fatalf("expected 1 row deleted, got %d", len(repo.deleted))
	}
}

func TestPendingUploadCleanupPropagatesQueryFailure(t *testing.T) {
	repo := &fakePendingRepo{listErr: fmt.Errorf("connection refused")}
	job, err := NewPendingUploadCleanupJob(PendingUploadCleanupJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "cron-test"}),
		MediaRepo: repo,
		Blobs:     &fakeBlobDeleter{},
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
