package media

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/crewboard/crewboard-backend/pkg/config"
	"github.com/crewboard/crewboard-backend/pkg/db/models"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard})
}

type stubFinder struct {
	byURL map[string]*models.Media
	byKey map[string]*models.Media

	// visibleAfter delays visibility: lookups miss until this many calls
	// have been made across both keys.
	visibleAfter int
	calls        int

	urlCalls int
	keyCalls int
}

func (f *stubFinder) FindUploadedByURL(_ context.Context, url string) (*models.Media, error) {
	f.calls++
	f.urlCalls++
	if f.calls <= f.visibleAfter {
		return nil, gorm.ErrRecordNotFound
	}
	if m, ok := f.byURL[url]; ok {
		return m, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *stubFinder) FindUploadedByStorageKey(_ context.Context, key string) (*models.Media, error) {
	f.calls++
	f.keyCalls++
	if f.calls <= f.visibleAfter {
		return nil, gorm.ErrRecordNotFound
	}
	if m, ok := f.byKey[key]; ok {
		return m, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type recordingSleep struct {
	delays []time.Duration
	err    error
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return r.err
}

func testResolver(t *testing.T, finder *stubFinder, sleep *recordingSleep) *Resolver {
	t.Helper()
	logg := testLogger()
	cfg := config.MediaConfig{ResolveAttempts: 5, ResolveBackoffStep: 200 * time.Millisecond}
	r, err := NewResolver(finder, cfg, logg, nil)
	if err != nil {
		t.Fatalf("building resolver: %v", err)
	}
	return r.WithSleep(sleep.sleep)
}

func TestResolvePrefersURL(t *testing.T) {
	want := &models.Media{ID: uuid.New()}
	finder := &stubFinder{
		byURL: map[string]*models.Media{"https://cdn.example.com/a.png": want},
		byKey: map[string]*models.Media{"uploads/a.png": {ID: uuid.New()}},
	}
	sleep := &recordingSleep{}

	got, err := testResolver(t, finder, sleep).Resolve(context.Background(), Descriptor{
		URL:        "https://cdn.example.com/a.png",
		StorageKey: "uploads/a.png",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want.ID {
		t.Fatalf("got %s want %s", got, want.ID)
	}
	if finder.keyCalls != 0 {
		t.Fatalf("expected no storage key lookups, got %d", finder.keyCalls)
	}
	if len(sleep.delays) != 0 {
		t.Fatalf("expected no backoff, got %v", sleep.delays)
	}
}

func TestResolveFallsBackToStorageKey(t *testing.T) {
	want := &models.Media{ID: uuid.New()}
	finder := &stubFinder{byKey: map[string]*models.Media{"uploads/b.png": want}}
	sleep := &recordingSleep{}

	got, err := testResolver(t, finder, sleep).Resolve(context.Background(), Descriptor{
		URL:        "https://cdn.example.com/missing.png",
		StorageKey: "uploads/b.png",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want.ID {
		t.Fatalf("got %s want %s", got, want.ID)
	}
}

func TestResolveBackoffTerminates(t *testing.T) {
	finder := &stubFinder{}
	sleep := &recordingSleep{}

	_, err := testResolver(t, finder, sleep).Resolve(context.Background(), Descriptor{
		StorageKey: "uploads/never.png",
	})
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}

	// Five attempts, backoff between attempts only.
	want := []time.Duration{200, 400, 600, 800}
	if len(sleep.delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), sleep.delays)
	}
	for i, ms := range want {
		if sleep.delays[i] != ms*time.Millisecond {
			t.Fatalf("sleep %d: got %v want %v", i, sleep.delays[i], ms*time.Millisecond)
		}
	}
	if finder.keyCalls != 5 {
		t.Fatalf("expected 5 lookups, got %d", finder.keyCalls)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	want := &models.Media{ID: uuid.New()}
	finder := &stubFinder{byKey: map[string]*models.Media{"uploads/c.png": want}}
	sleep := &recordingSleep{}
	r := testResolver(t, finder, sleep)

	d := Descriptor{StorageKey: "uploads/c.png"}
	first, err := r.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("resolution not stable: %s vs %s", first, second)
	}
}

func TestResolveEventuallyVisible(t *testing.T) {
	want := &models.Media{ID: uuid.New()}
	finder := &stubFinder{
		byKey:        map[string]*models.Media{"uploads/d.png": want},
		visibleAfter: 2,
	}
	sleep := &recordingSleep{}

	got, err := testResolver(t, finder, sleep).Resolve(context.Background(), Descriptor{
		StorageKey: "uploads/d.png",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want.ID {
		t.Fatalf("got %s want %s", got, want.ID)
	}
	if len(sleep.delays) != 2 {
		t.Fatalf("expected 2 backoffs before success, got %v", sleep.delays)
	}
}

func TestResolveEmbeddedIDSkipsLookups(t *testing.T) {
	finder := &stubFinder{}
	sleep := &recordingSleep{}
	embedded := uuid.New()

	got, err := testResolver(t, finder, sleep).Resolve(context.Background(), Descriptor{
		URL:        "https://cdn.example.com/e.png",
		EmbeddedID: &embedded,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != embedded {
		t.Fatalf("got %s want %s", got, embedded)
	}
	if finder.calls != 0 {
		t.Fatalf("expected no lookups, got %d", finder.calls)
	}
}

func TestResolveStopsWhenSleepCancelled(t *testing.T) {
	finder := &stubFinder{}
	sleep := &recordingSleep{err: context.Canceled}

	_, err := testResolver(t, finder, sleep).Resolve(context.Background(), Descriptor{
		StorageKey: "uploads/f.png",
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sleep.delays) != 1 {
		t.Fatalf("expected a single sleep before bailing, got %v", sleep.delays)
	}
}

func TestResolveByURL(t *testing.T) {
	want := &models.Media{ID: uuid.New()}
	finder := &stubFinder{byURL: map[string]*models.Media{"https://cdn.example.com/g.png": want}}
	r := testResolver(t, finder, &recordingSleep{})

	got, err := r.ResolveByURL(context.Background(), "https://cdn.example.com/g.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want.ID {
		t.Fatalf("got %s want %s", got, want.ID)
	}

	if _, err := r.ResolveByURL(context.Background(), "https://cdn.example.com/absent.png"); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestResolveRequiresLookupKey(t *testing.T) {
	r := testResolver(t, &stubFinder{}, &recordingSleep{})
	if _, err := r.Resolve(context.Background(), Descriptor{}); err == nil {
		t.Fatal("expected error for empty descriptor")
	}
}
