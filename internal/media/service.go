package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/crewboard/crewboard-backend/pkg/config"
	"github.com/crewboard/crewboard-backend/pkg/db/models"
	"github.com/crewboard/crewboard-backend/pkg/enums"
	pkgerrors "github.com/crewboard/crewboard-backend/pkg/errors"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type mediaRepository interface {
	Create(ctx context.Context, media *models.Media) (*models.Media, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Media, error)
	FindByStorageKey(ctx context.Context, key string) (*models.Media, error)
	Associate(ctx context.Context, id uuid.UUID, refType enums.RefType, refID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type uploaderDirectory interface {
	EarliestCreated(ctx context.Context) (*models.User, error)
}

type objectStore interface {
	SignedUploadURL(object, contentType string, ttl time.Duration) (string, error)
	DeleteObject(ctx context.Context, bucket, object string) error
}

type uploadResolver interface {
	Resolve(ctx context.Context, d Descriptor) (uuid.UUID, error)
	ResolveByURL(ctx context.Context, url string) (uuid.UUID, error)
}

type changeNotifier interface {
	GalleryChanged(ctx context.Context) error
}

// Service drives upload sessions end to end: presign, completion, resolution,
// removal, association.
type Service interface {
	BeginUpload(ctx context.Context, uploaderID *uuid.UUID, input BeginUploadInput) (*BeginUploadOutput, error)
	CompleteUpload(ctx context.Context, uploadID uuid.UUID, raw map[string]any) (*UploadStatus, error)
	FailUpload(ctx context.Context, uploadID uuid.UUID) (*UploadStatus, error)
	LastChanceResolve(ctx context.Context, uploadID uuid.UUID) (*UploadStatus, error)
	RemoveUpload(ctx context.Context, uploadID uuid.UUID) error
	Associate(ctx context.Context, mediaID uuid.UUID, refType enums.RefType, refID uuid.UUID) error
	EvictStaleSessions(ctx context.Context) int
}

type service struct {
	repo      mediaRepository
	users     uploaderDirectory
	sessions  *SessionStore
	resolver  uploadResolver
	store     objectStore
	notifier  changeNotifier
	logg      *logger.Logger
	maxBytes  int64
	uploadTTL time.Duration
	publicURL string
	now       func() time.Time
}

// NewService wires the upload pipeline together.
func NewService(
	repo mediaRepository,
	users uploaderDirectory,
	sessions *SessionStore,
	resolver uploadResolver,
	store objectStore,
	notifier changeNotifier,
	mediaCfg config.MediaConfig,
	gcsCfg config.GCSConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("media repository required")
	}
	if users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver required")
	}
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if mediaCfg.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("max upload size must be positive")
	}
	return &service{
		repo:      repo,
		users:     users,
		sessions:  sessions,
		resolver:  resolver,
		store:     store,
		notifier:  notifier,
		logg:      logg,
		maxBytes:  int64(mediaCfg.MaxUploadMB) * 1024 * 1024,
		uploadTTL: gcsCfg.UploadURLExpiry,
		publicURL: strings.TrimRight(gcsCfg.PublicBaseURL, "/"),
		now:       time.Now,
	}, nil
}

var allowedMimeTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
	"image/gif":  {},
}

// BeginUpload creates the pending MediaRecord, opens the upload session, and
// returns a signed PUT URL.
func (s *service) BeginUpload(ctx context.Context, uploaderID *uuid.UUID, input BeginUploadInput) (*BeginUploadOutput, error) {
	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file name required")
	}
	if _, ok := allowedMimeTypes[strings.ToLower(input.MimeType)]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported mime type")
	}
	if input.SizeBytes <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file size must be positive")
	}
	if input.SizeBytes > s.maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file exceeds upload size limit")
	}

	owner, err := s.resolveUploader(ctx, uploaderID)
	if err != nil {
		return nil, err
	}

	mediaID := uuid.New()
	storageKey := fmt.Sprintf("uploads/%s/%s", mediaID, sanitizeFileName(fileName))
	publicURL := ""
	if s.publicURL != "" {
		publicURL = s.publicURL + "/" + storageKey
	}

	row := &models.Media{
		ID:         mediaID,
		UploaderID: owner,
		Status:     enums.MediaStatusPending,
		StorageKey: storageKey,
		URL:        publicURL,
		FileName:   fileName,
		MimeType:   strings.ToLower(input.MimeType),
		SizeBytes:  input.SizeBytes,
		Width:      input.Width,
		Height:     input.Height,
		CapturedAt: input.CapturedAt,
	}
	if _, err := s.repo.Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating media record")
	}

	signedURL, err := s.store.SignedUploadURL(storageKey, row.MimeType, s.uploadTTL)
	if err != nil {
		// The pending row would never finalize; take it back out.
		if delErr := s.repo.Delete(ctx, mediaID); delErr != nil {
			s.logg.Error(ctx, "failed to remove orphaned pending media", delErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "signing upload url")
	}

	uploadID := uuid.New()
	session := NewSession(uploadID, owner)
	if err := session.Begin(storageKey); err != nil {
		return nil, err
	}
	s.sessions.Put(uploadID, session)

	logCtx := s.logg.WithUploadID(s.logg.WithMediaID(ctx, mediaID.String()), uploadID.String())
	s.logg.Info(logCtx, "upload session started")

	return &BeginUploadOutput{
		UploadID:     uploadID,
		MediaID:      mediaID,
		StorageKey:   storageKey,
		SignedPUTURL: signedURL,
		PublicURL:    publicURL,
		ContentType:  row.MimeType,
		ExpiresAt:    s.now().Add(s.uploadTTL),
	}, nil
}

// CompleteUpload accepts the raw upload result, normalizes it, and resolves
// the matching record. An unresolved outcome is reported in the returned
// status, not as an error.
func (s *service) CompleteUpload(ctx context.Context, uploadID uuid.UUID, raw map[string]any) (*UploadStatus, error) {
	session := s.sessions.Get(uploadID)
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "upload session not found")
	}

	descriptor, generation, err := session.StartResolve(raw)
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithUploadID(ctx, uploadID.String())

	mediaID, resolveErr := s.resolver.Resolve(ctx, descriptor)
	if resolveErr != nil && !errors.Is(resolveErr, ErrUnresolved) {
		session.FinishResolve(generation, uuid.Nil, "", resolveErr)
		return nil, resolveErr
	}

	mediaURL := descriptor.URL
	if resolveErr == nil {
		if row, lookupErr := s.repo.FindByID(ctx, mediaID); lookupErr == nil && row.URL != "" {
			mediaURL = row.URL
		}
	}

	if applied := session.FinishResolve(generation, mediaID, mediaURL, resolveErr); !applied {
		s.logg.Debug(logCtx, "resolution outcome arrived after session moved on")
	}

	return statusFromSnapshot(uploadID, session.Snapshot()), nil
}

// FailUpload records a transport failure reported by the client.
func (s *service) FailUpload(ctx context.Context, uploadID uuid.UUID) (*UploadStatus, error) {
	session := s.sessions.Get(uploadID)
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "upload session not found")
	}
	if err := session.Fail(); err != nil {
		return nil, err
	}
	s.logg.Warn(s.logg.WithUploadID(ctx, uploadID.String()), "upload reported failed")
	return statusFromSnapshot(uploadID, session.Snapshot()), nil
}

// LastChanceResolve runs one extra URL-only resolution attempt for a session
// that reached a submit boundary without an id.
func (s *service) LastChanceResolve(ctx context.Context, uploadID uuid.UUID) (*UploadStatus, error) {
	session := s.sessions.Get(uploadID)
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "upload session not found")
	}

	snap := session.Snapshot()
	if snap.MediaID != nil {
		return statusFromSnapshot(uploadID, snap), nil
	}
	if snap.URL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no url available to resolve")
	}

	generation := session.Generation()
	mediaID, err := s.resolver.ResolveByURL(ctx, snap.URL)
	if err != nil {
		if errors.Is(err, ErrUnresolved) {
			return statusFromSnapshot(uploadID, session.Snapshot()), nil
		}
		return nil, err
	}

	session.ApplyLastChance(generation, mediaID)
	return statusFromSnapshot(uploadID, session.Snapshot()), nil
}

// RemoveUpload abandons the session from any state. A resolved record is
// deleted along with its blob; a pending row that never finalized is swept
// too. Blob deletion is best-effort.
func (s *service) RemoveUpload(ctx context.Context, uploadID uuid.UUID) error {
	session := s.sessions.Get(uploadID)
	if session == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "upload session not found")
	}

	snap := session.Snapshot()
	removedMediaID := session.Remove()
	s.sessions.Delete(uploadID)

	logCtx := s.logg.WithUploadID(ctx, uploadID.String())

	switch {
	case removedMediaID != nil:
		if err := s.deleteRecordAndBlob(logCtx, *removedMediaID); err != nil {
			return err
		}
		s.notifyChanged(logCtx)
	case snap.StorageKey != "":
		if err := s.deletePendingByStorageKey(logCtx, snap.StorageKey); err != nil {
			return err
		}
	}

	s.logg.Info(logCtx, "upload session removed")
	return nil
}

// Associate attaches a media record to its single owning entity.
func (s *service) Associate(ctx context.Context, mediaID uuid.UUID, refType enums.RefType, refID uuid.UUID) error {
	if !refType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid ref type")
	}
	if refID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ref id required")
	}
	if _, err := s.repo.FindByID(ctx, mediaID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "media record not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading media record")
	}
	if err := s.repo.Associate(ctx, mediaID, refType, refID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "associating media record")
	}
	return nil
}

// EvictStaleSessions drops sessions idle past the TTL and sweeps any pending
// rows they left behind. Returns how many sessions went.
func (s *service) EvictStaleSessions(ctx context.Context) int {
	evicted := s.sessions.EvictStale()
	for _, snap := range evicted {
		if snap.MediaID != nil || snap.StorageKey == "" {
			continue
		}
		if err := s.deletePendingByStorageKey(ctx, snap.StorageKey); err != nil {
			s.logg.Error(ctx, "failed to sweep pending row for evicted session", err)
		}
	}
	return len(evicted)
}

func (s *service) resolveUploader(ctx context.Context, uploaderID *uuid.UUID) (*uuid.UUID, error) {
	if uploaderID != nil && *uploaderID != uuid.Nil {
		return uploaderID, nil
	}
	// Anonymous uploads fall back to the earliest-created user. Attribution
	// under this rule is approximate; the choice is deterministic.
	owner, err := s.users.EarliestCreated(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(ctx, "no fallback owner available for anonymous upload")
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving fallback uploader")
	}
	id := owner.ID
	return &id, nil
}

func (s *service) deleteRecordAndBlob(ctx context.Context, mediaID uuid.UUID) error {
	row, err := s.repo.FindByID(ctx, mediaID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading media record")
	}
	if err := s.repo.Delete(ctx, mediaID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting media record")
	}
	if err := s.store.DeleteObject(ctx, "", row.StorageKey); err != nil {
		s.logg.Warn(s.logg.WithMediaID(ctx, mediaID.String()), "blob deletion failed, leaving orphaned object")
	}
	return nil
}

func (s *service) deletePendingByStorageKey(ctx context.Context, storageKey string) error {
	row, err := s.repo.FindByStorageKey(ctx, storageKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading pending media record")
	}
	if row.Status != enums.MediaStatusPending {
		return nil
	}
	if err := s.repo.Delete(ctx, row.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting pending media record")
	}
	if err := s.store.DeleteObject(ctx, "", row.StorageKey); err != nil {
		s.logg.Warn(ctx, "blob deletion failed for pending upload")
	}
	return nil
}

func (s *service) notifyChanged(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.GalleryChanged(ctx); err != nil {
		s.logg.Warn(ctx, "gallery change signal failed")
	}
}

func sanitizeFileName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	cleaned := strings.Trim(b.String(), ".-_")
	if cleaned == "" {
		return "file"
	}
	return cleaned
}
