package gallery

import (
	"context"
	"fmt"

	"github.com/crewboard/crewboard-backend/pkg/db/models"
	pkgerrors "github.com/crewboard/crewboard-backend/pkg/errors"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	"github.com/crewboard/crewboard-backend/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

type batchRepository interface {
	SetPublished(ctx context.Context, id uuid.UUID, published bool) error
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Media, error)
	DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type blobStore interface {
	DeleteObject(ctx context.Context, bucket, object string) error
}

// BatchMutator applies publish toggles and deletes across many identities.
// Publish is deliberately per-item: the record store offers no atomic
// multi-row toggle, so a partial failure leaves some items flipped and is
// surfaced once, aggregated, at the end.
type BatchMutator struct {
	repo    batchRepository
	blobs   blobStore
	metrics *metrics.GalleryMetrics
	logg    *logger.Logger
}

// NewBatchMutator wires the batch mutation paths.
func NewBatchMutator(repo batchRepository, blobs blobStore, logg *logger.Logger, m *metrics.GalleryMetrics) (*BatchMutator, error) {
	if repo == nil {
		return nil, fmt.Errorf("batch repository required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &BatchMutator{repo: repo, blobs: blobs, metrics: m, logg: logg}, nil
}

// Publish applies the flag to each identity independently. Failed items do
// not stop the rest; the aggregate error reports every failure at once.
func (b *BatchMutator) Publish(ctx context.Context, ids []uuid.UUID, published bool) error {
	if len(ids) == 0 {
		return nil
	}

	var errs error
	for _, id := range ids {
		if err := b.repo.SetPublished(ctx, id, published); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("media %s: %w", id, err))
			b.metrics.IncBatchItemFailure("publish")
		}
	}
	if errs != nil {
		return pkgerrors.Wrap(pkgerrors.CodePartialBatch, errs, "some publish updates failed").
			WithDetails(map[string]any{
				"attempted": len(ids),
				"failed":    len(multierr.Errors(errs)),
			})
	}
	return nil
}

// Delete removes the rows in one batch, then requests blob deletion for each.
// Blob failures are logged and left for the object-store lifecycle; they
// never fail the batch.
func (b *BatchMutator) Delete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	rows, err := b.repo.FindByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading records for delete")
	}

	if _, err := b.repo.DeleteMany(ctx, ids); err != nil {
		b.metrics.IncBatchItemFailure("delete")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting media batch")
	}

	for _, row := range rows {
		if row.StorageKey == "" {
			continue
		}
		if err := b.blobs.DeleteObject(ctx, "", row.StorageKey); err != nil {
			b.logg.Warn(b.logg.WithMediaID(ctx, row.ID.String()), "blob deletion failed, leaving orphaned object")
		}
	}
	return nil
}
