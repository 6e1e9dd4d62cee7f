package media

import (
	"sync"
	"time"

	"github.com/crewboard/crewboard-backend/pkg/enums"
	pkgerrors "github.com/crewboard/crewboard-backend/pkg/errors"
	"github.com/google/uuid"
)

// Session is the per-upload state machine: idle → uploading → resolving →
// {resolved, failed}, back to idle on removal. It is the single source of
// truth for the resolved (mediaID, mediaURL) pair; callers read it from here
// rather than from any out-of-band channel.
//
// Resolution runs outside the lock, so every resolve carries the generation
// it started under. Remove bumps the generation; a resolution that finishes
// after its session was removed is dropped on the floor.
type Session struct {
	mu sync.Mutex

	id         uuid.UUID
	uploaderID *uuid.UUID

	state      enums.UploadState
	generation uint64

	storageKey string
	url        string
	mediaID    *uuid.UUID

	createdAt time.Time
	updatedAt time.Time

	now func() time.Time
}

// Snapshot is a point-in-time copy of the session's observable state.
type Snapshot struct {
	ID         uuid.UUID
	UploaderID *uuid.UUID
	State      enums.UploadState
	StorageKey string
	URL        string
	MediaID    *uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewSession constructs an idle session for one upload interaction.
func NewSession(id uuid.UUID, uploaderID *uuid.UUID) *Session {
	return newSessionWithClock(id, uploaderID, time.Now)
}

func newSessionWithClock(id uuid.UUID, uploaderID *uuid.UUID, now func() time.Time) *Session {
	ts := now()
	return &Session{
		id:         id,
		uploaderID: uploaderID,
		state:      enums.UploadStateIdle,
		createdAt:  ts,
		updatedAt:  ts,
		now:        now,
	}
}

// Begin marks the upload in flight. The storage key is fixed at begin time;
// it names the pending row and the object the browser will PUT.
func (s *Session) Begin(storageKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != enums.UploadStateIdle {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "upload already started")
	}
	s.state = enums.UploadStateUploading
	s.storageKey = storageKey
	s.touch()
	return nil
}

// StartResolve normalizes the raw upload result and moves the session to
// resolving. It returns the descriptor to resolve and the generation the
// caller must present back to FinishResolve.
func (s *Session) StartResolve(raw map[string]any) (Descriptor, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != enums.UploadStateUploading {
		return Descriptor{}, 0, pkgerrors.New(pkgerrors.CodeStateConflict, "upload is not awaiting completion")
	}

	d, err := NormalizeUploadResult(raw)
	if err != nil {
		return Descriptor{}, 0, err
	}

	if d.StorageKey == "" {
		d.StorageKey = s.storageKey
	}

	s.state = enums.UploadStateResolving
	s.url = d.URL
	s.touch()
	return d, s.generation, nil
}

// FinishResolve applies a resolution outcome. The result is ignored when the
// generation no longer matches (the session was removed mid-resolve) or the
// session has left the resolving state; the bool reports whether it applied.
//
// ErrUnresolved lands in failed with the URL kept and the id unset, so the
// caller still has an image to show and a handle for the last-chance retry.
func (s *Session) FinishResolve(generation uint64, mediaID uuid.UUID, mediaURL string, resolveErr error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation || s.state != enums.UploadStateResolving {
		return false
	}

	if resolveErr != nil {
		s.state = enums.UploadStateFailed
		s.touch()
		return true
	}

	id := mediaID
	s.mediaID = &id
	if mediaURL != "" {
		s.url = mediaURL
	}
	s.state = enums.UploadStateResolved
	s.touch()
	return true
}

// ApplyLastChance records a successful URL-only re-resolution at a submit
// boundary. Only a failed session with its URL still set qualifies.
func (s *Session) ApplyLastChance(generation uint64, mediaID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation || s.state != enums.UploadStateFailed || s.url == "" {
		return false
	}
	id := mediaID
	s.mediaID = &id
	s.state = enums.UploadStateResolved
	s.touch()
	return true
}

// Fail records a transport failure.
func (s *Session) Fail() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case enums.UploadStateUploading, enums.UploadStateResolving:
		s.state = enums.UploadStateFailed
		s.touch()
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "upload is not in flight")
	}
}

// Remove returns the session to idle from any state and bumps the generation
// so an in-flight resolution cannot land afterwards. It returns the resolved
// media id, if any, so the caller can delete the record and its blob.
func (s *Session) Remove() (removedMediaID *uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removedMediaID = s.mediaID
	s.generation++
	s.state = enums.UploadStateIdle
	s.storageKey = ""
	s.url = ""
	s.mediaID = nil
	s.touch()
	return removedMediaID
}

// Snapshot returns a copy of the current observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:         s.id,
		UploaderID: s.uploaderID,
		State:      s.state,
		StorageKey: s.storageKey,
		URL:        s.url,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
	if s.mediaID != nil {
		id := *s.mediaID
		snap.MediaID = &id
	}
	return snap
}

// Generation returns the current generation for guarded async completions.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Session) touch() {
	s.updatedAt = s.now()
}
