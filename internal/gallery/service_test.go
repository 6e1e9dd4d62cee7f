package gallery

import (
	"context"
	"testing"
	"time"

	"github.com/crewboard/crewboard-backend/pkg/db/models"
)

type countingNotifier struct {
	calls int
}

func (n *countingNotifier) GalleryChanged(context.Context) error {
	n.calls++
	return nil
}

type serviceFixture struct {
	svc      Service
	lister   *stubLister
	signal   *stubSignal
	writer   *stubWriter
	repo     *stubBatchRepo
	blobs    *stubBlobs
	notifier *countingNotifier
	sched    *manualScheduler
}

func newGalleryFixture(t *testing.T, rows []models.Media) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		lister:   &stubLister{rows: rows},
		signal:   newStubSignal(),
		writer:   &stubWriter{},
		repo:     newStubBatchRepo(),
		blobs:    &stubBlobs{},
		notifier: &countingNotifier{},
		sched:    &manualScheduler{},
	}
	for i := range rows {
		row := rows[i]
		f.repo.rows[row.ID] = &row
	}

	logg := testLogger()
	feed, err := NewFeed(f.lister, f.signal, 100, logg)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	reconciler, err := NewReconciler(f.writer, 300*time.Millisecond, logg, nil)
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}
	reconciler.WithScheduler(f.sched.schedule)
	mutator, err := NewBatchMutator(f.repo, f.blobs, logg, nil)
	if err != nil {
		t.Fatalf("mutator: %v", err)
	}
	svc, err := NewService(feed, reconciler, mutator, f.notifier, logg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	f.svc = svc
	return f
}

func threeRows() []models.Media {
	return []models.Media{mediaRow(0), mediaRow(1), mediaRow(2)}
}

func TestSubscribeDeliversCurrentSnapshotFirst(t *testing.T) {
	f := newGalleryFixture(t, threeRows())

	ch, cancel, err := f.svc.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	first := awaitPush(t, ch)
	if len(first) != 3 {
		t.Fatalf("expected 3 items in the initial snapshot, got %d", len(first))
	}
}

func TestReorderBroadcastsOptimisticResult(t *testing.T) {
	rows := threeRows()
	f := newGalleryFixture(t, rows)

	ch, cancel, err := f.svc.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	awaitPush(t, ch) // initial

	rendered, err := f.svc.Reorder(context.Background(), rows[2].ID, rows[0].ID)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if rendered.IDs()[0] != rows[2].ID {
		t.Fatal("expected dragged item first")
	}

	pushed := awaitPush(t, ch)
	if pushed.IDs()[0] != rows[2].ID {
		t.Fatal("expected optimistic sequence broadcast to subscribers")
	}
	if len(f.writer.batches) != 1 {
		t.Fatalf("expected an order batch, got %d", len(f.writer.batches))
	}
	if f.notifier.calls == 0 {
		t.Fatal("expected a change signal after the batch write")
	}
}

func TestPublishUsesSelectionAndClearsIt(t *testing.T) {
	rows := threeRows()
	f := newGalleryFixture(t, rows)

	if _, err := f.svc.Rendered(context.Background()); err != nil {
		t.Fatalf("prime: %v", err)
	}
	selected := f.svc.SelectAll(context.Background(), true)
	if len(selected) != 3 {
		t.Fatalf("expected 3 selected, got %d", len(selected))
	}

	if err := f.svc.Publish(context.Background(), nil, true); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for _, row := range rows {
		if !f.repo.published[row.ID] {
			t.Fatalf("row %s not published", row.ID)
		}
	}
	if got := f.svc.SelectAll(context.Background(), false); len(got) != 0 {
		t.Fatal("expected selection cleared")
	}
}

func TestSelectAllThenFullDeleteEmptiesGallery(t *testing.T) {
	rows := threeRows()
	f := newGalleryFixture(t, rows)

	if _, err := f.svc.Rendered(context.Background()); err != nil {
		t.Fatalf("prime: %v", err)
	}
	f.svc.SelectAll(context.Background(), true)

	state, err := f.svc.RequestDelete(context.Background(), nil)
	if err != nil {
		t.Fatalf("request delete: %v", err)
	}
	if state != DeleteStateConfirming {
		t.Fatalf("expected confirming, got %s", state)
	}

	state, err = f.svc.ConfirmDelete(context.Background())
	if err != nil {
		t.Fatalf("confirm delete: %v", err)
	}
	if state != DeleteStateIdle {
		t.Fatalf("expected idle, got %s", state)
	}
	if len(f.repo.deleted) != 3 {
		t.Fatalf("expected 3 rows deleted, got %d", len(f.repo.deleted))
	}

	// The feed requeries and the rendered sequence collapses to empty.
	f.lister.set(nil)
	svc := f.svc.(*service)
	svc.applyPush(context.Background(), Sequence{})
	if got := svc.reconciler.Rendered(); len(got) != 0 {
		t.Fatalf("expected empty rendering, got %d items", len(got))
	}
}

func TestConfirmDeleteFailureKeepsSelection(t *testing.T) {
	rows := threeRows()
	f := newGalleryFixture(t, rows)

	if _, err := f.svc.Rendered(context.Background()); err != nil {
		t.Fatalf("prime: %v", err)
	}
	f.svc.SelectAll(context.Background(), true)
	if _, err := f.svc.RequestDelete(context.Background(), nil); err != nil {
		t.Fatalf("request: %v", err)
	}

	f.repo.deleteErr = context.DeadlineExceeded
	state, err := f.svc.ConfirmDelete(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if state != DeleteStateConfirming {
		t.Fatalf("expected confirming after failure, got %s", state)
	}

	// The batch is retryable.
	f.repo.deleteErr = nil
	state, err = f.svc.ConfirmDelete(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if state != DeleteStateIdle {
		t.Fatalf("expected idle after retry, got %s", state)
	}
}

func TestApplyPushPrunesSelection(t *testing.T) {
	rows := threeRows()
	f := newGalleryFixture(t, rows)

	if _, err := f.svc.Rendered(context.Background()); err != nil {
		t.Fatalf("prime: %v", err)
	}
	f.svc.SelectAll(context.Background(), true)

	svc := f.svc.(*service)
	svc.applyPush(context.Background(), SequenceFromModels(rows[:2]))

	if n := svc.selection.Len(); n != 2 {
		t.Fatalf("expected selection pruned to 2, got %d", n)
	}
}
