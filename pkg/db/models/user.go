package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the minimal identity row the gallery needs for uploader attribution.
type User struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string    `gorm:"column:email;not null;unique"`
	Name      string    `gorm:"column:name"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
