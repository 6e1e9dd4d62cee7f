package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crewboard/crewboard-backend/pkg/config"
	"github.com/crewboard/crewboard-backend/pkg/db/models"
	pkgerrors "github.com/crewboard/crewboard-backend/pkg/errors"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	"github.com/crewboard/crewboard-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrUnresolved reports that every lookup attempt missed. The upload itself
// succeeded; the metadata row just isn't visible yet. Callers decide whether
// to retry at a submit boundary or proceed without an association.
var ErrUnresolved = pkgerrors.New(pkgerrors.CodeUnresolved, "media record not found after retries")

type recordFinder interface {
	FindUploadedByURL(ctx context.Context, url string) (*models.Media, error)
	FindUploadedByStorageKey(ctx context.Context, key string) (*models.Media, error)
}

// SleepFunc waits for the given duration or until the context is done.
// Injected so backoff is testable without real timers.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Resolver finds the MediaRecord matching an upload descriptor. It is
// read-only: it never creates rows, and exhaustion is an explicit outcome.
type Resolver struct {
	records  recordFinder
	attempts int
	step     time.Duration
	sleep    SleepFunc
	logg     *logger.Logger
	metrics  *metrics.GalleryMetrics
}

// NewResolver constructs a resolver with the configured attempt budget and
// linear backoff step.
func NewResolver(records recordFinder, cfg config.MediaConfig, logg *logger.Logger, m *metrics.GalleryMetrics) (*Resolver, error) {
	if records == nil {
		return nil, fmt.Errorf("record finder required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.ResolveAttempts <= 0 {
		return nil, fmt.Errorf("resolve attempts must be positive")
	}
	if cfg.ResolveBackoffStep <= 0 {
		return nil, fmt.Errorf("resolve backoff step must be positive")
	}
	return &Resolver{
		records:  records,
		attempts: cfg.ResolveAttempts,
		step:     cfg.ResolveBackoffStep,
		sleep:    sleepWithContext,
		logg:     logg,
		metrics:  m,
	}, nil
}

// WithSleep swaps the backoff sleep. Test hook.
func (r *Resolver) WithSleep(sleep SleepFunc) *Resolver {
	if sleep != nil {
		r.sleep = sleep
	}
	return r
}

// Resolve looks the descriptor up by URL first, then by storage key, waiting
// attempt*step between misses. An embedded record id short-circuits the whole
// loop. Returns ErrUnresolved after the final miss.
func (r *Resolver) Resolve(ctx context.Context, d Descriptor) (uuid.UUID, error) {
	if d.EmbeddedID != nil {
		return *d.EmbeddedID, nil
	}
	if !d.HasLookupKey() {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "descriptor carries neither url nor storage key")
	}

	for attempt := 1; attempt <= r.attempts; attempt++ {
		id, found, err := r.lookup(ctx, d)
		if err != nil {
			return uuid.Nil, err
		}
		if found {
			return id, nil
		}
		if attempt == r.attempts {
			break
		}
		if err := r.sleep(ctx, time.Duration(attempt)*r.step); err != nil {
			return uuid.Nil, err
		}
	}

	r.metrics.IncResolverExhaustion()
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"url":         d.URL,
		"storage_key": d.StorageKey,
		"attempts":    r.attempts,
	}), "upload resolution exhausted")
	return uuid.Nil, ErrUnresolved
}

// ResolveByURL performs one URL-only lookup with no retries. This backs the
// last-chance hook at submit boundaries.
func (r *Resolver) ResolveByURL(ctx context.Context, url string) (uuid.UUID, error) {
	if url == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "url required")
	}
	row, err := r.records.FindUploadedByURL(ctx, url)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, ErrUnresolved
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "media lookup failed")
	}
	return row.ID, nil
}

func (r *Resolver) lookup(ctx context.Context, d Descriptor) (uuid.UUID, bool, error) {
	if d.URL != "" {
		row, err := r.records.FindUploadedByURL(ctx, d.URL)
		switch {
		case err == nil:
			return row.ID, true, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return uuid.Nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "media lookup by url failed")
		}
	}
	if d.StorageKey != "" {
		row, err := r.records.FindUploadedByStorageKey(ctx, d.StorageKey)
		switch {
		case err == nil:
			return row.ID, true, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return uuid.Nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "media lookup by storage key failed")
		}
	}
	return uuid.Nil, false, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
