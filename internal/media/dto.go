package media

import (
	"time"

	"github.com/crewboard/crewboard-backend/pkg/enums"
	"github.com/google/uuid"
)

// BeginUploadInput models the payload required to start an upload.
type BeginUploadInput struct {
	FileName   string     `json:"file_name" validate:"required"`
	MimeType   string     `json:"mime_type" validate:"required"`
	SizeBytes  int64      `json:"size_bytes" validate:"required,gt=0"`
	Width      int        `json:"width" validate:"omitempty,gt=0"`
	Height     int        `json:"height" validate:"omitempty,gt=0"`
	CapturedAt *time.Time `json:"captured_at"`
}

// BeginUploadOutput is handed back to the client so it can PUT the file.
type BeginUploadOutput struct {
	UploadID     uuid.UUID `json:"upload_id"`
	MediaID      uuid.UUID `json:"media_id"`
	StorageKey   string    `json:"storage_key"`
	SignedPUTURL string    `json:"signed_put_url"`
	PublicURL    string    `json:"public_url"`
	ContentType  string    `json:"content_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// UploadStatus is the observable state of one upload session.
type UploadStatus struct {
	UploadID uuid.UUID         `json:"upload_id"`
	State    enums.UploadState `json:"state"`
	MediaID  *uuid.UUID        `json:"media_id,omitempty"`
	MediaURL string            `json:"media_url,omitempty"`
	Resolved bool              `json:"resolved"`
}

func statusFromSnapshot(uploadID uuid.UUID, snap Snapshot) *UploadStatus {
	return &UploadStatus{
		UploadID: uploadID,
		State:    snap.State,
		MediaID:  snap.MediaID,
		MediaURL: snap.URL,
		Resolved: snap.MediaID != nil,
	}
}
