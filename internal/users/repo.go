package users

import (
	"context"

	"github.com/crewboard/crewboard-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes the user lookups the gallery needs.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// EarliestCreated returns the oldest user row. This is the named fallback
// owner for uploads that arrive without an identified uploader; attribution
// under that rule is approximate and the row is chosen deterministically.
func (r *Repository) EarliestCreated(ctx context.Context) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
