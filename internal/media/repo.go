package media

import (
	"context"
	"time"

	"github.com/crewboard/crewboard-backend/pkg/db/models"
	"github.com/crewboard/crewboard-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes media metadata persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a media repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a media record.
func (r *Repository) Create(ctx context.Context, media *models.Media) (*models.Media, error) {
	if err := r.db.WithContext(ctx).Create(media).Error; err != nil {
		return nil, err
	}
	return media, nil
}

// FindByID retrieves a media record by ID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	var m models.Media
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// FindByStorageKey retrieves a media record by its storage key, any status.
// The finalize hook needs to see pending rows.
func (r *Repository) FindByStorageKey(ctx context.Context, key string) (*models.Media, error) {
	var m models.Media
	if err := r.db.WithContext(ctx).First(&m, "storage_key = ?", key).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// FindUploadedByURL retrieves an uploaded record by exact URL. Pending rows
// don't count: a row only exists, as far as resolution is concerned, once the
// finalize hook has run.
func (r *Repository) FindUploadedByURL(ctx context.Context, url string) (*models.Media, error) {
	var m models.Media
	err := r.db.WithContext(ctx).
		Where("url = ? AND status = ?", url, enums.MediaStatusUploaded).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindUploadedByStorageKey retrieves an uploaded record by storage key.
func (r *Repository) FindUploadedByStorageKey(ctx context.Context, key string) (*models.Media, error) {
	var m models.Media
	err := r.db.WithContext(ctx).
		Where("storage_key = ? AND status = ?", key, enums.MediaStatusUploaded).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListGallery returns the authoritative gallery sequence: uploaded records
// ordered by explicit display order first, unordered rows appended in
// insertion order, capped at limit.
func (r *Repository) ListGallery(ctx context.Context, limit int) ([]models.Media, error) {
	var rows []models.Media
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.MediaStatusUploaded).
		Order("display_order ASC NULLS LAST").
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// OrderAssignment pairs one record with its new display order index.
type OrderAssignment struct {
	ID    uuid.UUID `json:"id"`
	Index int       `json:"index"`
}

// UpdateOrders applies a batch of display-order assignments in one
// transaction. Re-running the same batch is a no-op; the write is a
// convergent overwrite.
func (r *Repository) UpdateOrders(ctx context.Context, assignments []OrderAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range assignments {
			err := tx.Model(&models.Media{}).
				Where("id = ?", a.ID).
				UpdateColumn("display_order", a.Index).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SetPublished toggles the publish flag on one record.
func (r *Repository) SetPublished(ctx context.Context, id uuid.UUID, published bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Media{}).
		Where("id = ?", id).
		UpdateColumn("published", published).Error
}

// Associate sets the single owning association.
func (r *Repository) Associate(ctx context.Context, id uuid.UUID, refType enums.RefType, refID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Media{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"ref_type": refType,
			"ref_id":   refID,
		}).Error
}

// ClearAssociation removes the owning association.
func (r *Repository) ClearAssociation(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Media{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"ref_type": nil,
			"ref_id":   nil,
		}).Error
}

// MarkUploaded flips a pending row to uploaded and records when the object
// landed. Size is taken from the object store notification when present.
func (r *Repository) MarkUploaded(ctx context.Context, id uuid.UUID, uploadedAt time.Time, sizeBytes int64) error {
	updates := map[string]any{
		"status":      enums.MediaStatusUploaded,
		"uploaded_at": uploadedAt,
	}
	if sizeBytes > 0 {
		updates["size_bytes"] = sizeBytes
	}
	return r.db.WithContext(ctx).
		Model(&models.Media{}).
		Where("id = ?", id).
		UpdateColumns(updates).Error
}

// MarkDeleted records that the backing object is gone.
func (r *Repository) MarkDeleted(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Media{}).
		Where("id = ?", id).
		UpdateColumn("status", enums.MediaStatusDeleted).Error
}

// Delete removes one media record.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Media{}).Error
}

// FindByIDs loads the records for a batch operation.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Media, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Media
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteMany removes a batch of media records and reports how many went.
func (r *Repository) DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Media{})
	return res.RowsAffected, res.Error
}

// ListPendingBefore returns pending rows created before the cutoff. The
// cleanup job uses this to sweep uploads that never finalized.
func (r *Repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Media, error) {
	var rows []models.Media
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.MediaStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
