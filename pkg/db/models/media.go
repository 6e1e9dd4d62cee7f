package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/crewboard/crewboard-backend/pkg/enums"
)

// Media captures metadata for one uploaded gallery asset. StorageKey is unique
// per upload; resolving the same upload twice always lands on the same row.
type Media struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UploaderID   *uuid.UUID        `gorm:"column:uploader_id;type:uuid"`
	Status       enums.MediaStatus `gorm:"column:status;not null;default:pending"`
	StorageKey   string            `gorm:"column:storage_key;not null;unique"`
	URL          string            `gorm:"column:url"`
	FileName     string            `gorm:"column:file_name;not null"`
	MimeType     string            `gorm:"column:mime_type;not null"`
	SizeBytes    int64             `gorm:"column:size_bytes;not null"`
	Width        int               `gorm:"column:width"`
	Height       int               `gorm:"column:height"`
	CapturedAt   *time.Time        `gorm:"column:captured_at"`
	DisplayOrder *int              `gorm:"column:display_order"`
	Published    bool              `gorm:"column:published;not null;default:false"`
	RefType      *enums.RefType    `gorm:"column:ref_type"`
	RefID        *uuid.UUID        `gorm:"column:ref_id;type:uuid"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UploadedAt   *time.Time        `gorm:"column:uploaded_at"`
}

// TableName pins the singular table name; the default pluralizer gets
// "media" wrong.
func (Media) TableName() string {
	return "media"
}
