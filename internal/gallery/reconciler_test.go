package gallery

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/crewboard/crewboard-backend/internal/media"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard})
}

type stubWriter struct {
	batches [][]media.OrderAssignment
	err     error
}

func (w *stubWriter) UpdateOrders(_ context.Context, assignments []media.OrderAssignment) error {
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, assignments)
	return nil
}

// manualScheduler captures scheduled callbacks so tests fire them by hand.
type manualScheduler struct {
	pending   []func()
	cancelled int
}

func (m *manualScheduler) schedule(_ time.Duration, fn func()) func() {
	m.pending = append(m.pending, fn)
	return func() { m.cancelled++ }
}

func (m *manualScheduler) fire(t *testing.T) {
	t.Helper()
	if len(m.pending) == 0 {
		t.Fatal("no scheduled callback to fire")
	}
	fn := m.pending[len(m.pending)-1]
	m.pending = m.pending[:len(m.pending)-1]
	fn()
}

func sequenceOf(n int) Sequence {
	seq := make(Sequence, n)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range seq {
		order := i
		seq[i] = Item{
			ID:           uuid.New(),
			URL:          "https://cdn.example.com/img.png",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
			DisplayOrder: &order,
		}
	}
	return seq
}

func testReconciler(t *testing.T, writer *stubWriter, sched *manualScheduler) *Reconciler {
	t.Helper()
	r, err := NewReconciler(writer, 300*time.Millisecond, testLogger(), nil)
	if err != nil {
		t.Fatalf("building reconciler: %v", err)
	}
	return r.WithScheduler(sched.schedule)
}

func TestDragProducesExpectedAssignments(t *testing.T) {
	writer := &stubWriter{}
	sched := &manualScheduler{}
	r := testReconciler(t, writer, sched)

	seq := sequenceOf(5)
	r.ApplyAuthoritative(context.Background(), seq)

	// Drag the item at index 4 onto the item at index 1.
	rendered, err := r.OnDragEnd(context.Background(), seq[4].ID, seq[1].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantOrder := []uuid.UUID{seq[0].ID, seq[4].ID, seq[1].ID, seq[2].ID, seq[3].ID}
	gotOrder := rendered.IDs()
	for i := range wantOrder {
		if gotOrder[i] != wantOrder[i] {
			t.Fatalf("position %d: got %s want %s", i, gotOrder[i], wantOrder[i])
		}
	}

	if len(writer.batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(writer.batches))
	}
	for i, a := range writer.batches[0] {
		if a.ID != wantOrder[i] || a.Index != i {
			t.Fatalf("assignment %d: got (%s,%d)", i, a.ID, a.Index)
		}
	}
}

func TestDragIsPermutation(t *testing.T) {
	writer := &stubWriter{}
	r := testReconciler(t, writer, &manualScheduler{})

	seq := sequenceOf(7)
	r.ApplyAuthoritative(context.Background(), seq)

	rendered, err := r.OnDragEnd(context.Background(), seq[2].ID, seq[5].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rendered) != len(seq) {
		t.Fatalf("length changed: %d vs %d", len(rendered), len(seq))
	}
	if !sameIDSet(rendered, seq) {
		t.Fatal("membership changed")
	}
	if rendered.indexOf(seq[2].ID) != 5 {
		t.Fatalf("dragged item at %d, want 5", rendered.indexOf(seq[2].ID))
	}
	// Everything else keeps its relative order.
	var rest []uuid.UUID
	for _, item := range rendered {
		if item.ID != seq[2].ID {
			rest = append(rest, item.ID)
		}
	}
	var want []uuid.UUID
	for i, item := range seq {
		if i != 2 {
			want = append(want, item.ID)
		}
	}
	for i := range want {
		if rest[i] != want[i] {
			t.Fatalf("relative order broken at %d", i)
		}
	}
}

func TestCancelledDragClearsOverlay(t *testing.T) {
	writer := &stubWriter{}
	r := testReconciler(t, writer, &manualScheduler{})

	seq := sequenceOf(3)
	r.ApplyAuthoritative(context.Background(), seq)
	if _, err := r.OnDragEnd(context.Background(), seq[0].ID, seq[2].ID); err != nil {
		t.Fatalf("drag: %v", err)
	}
	if !r.HasOverlay() {
		t.Fatal("expected live overlay")
	}

	// Same source and target is a cancel.
	rendered, err := r.OnDragEnd(context.Background(), seq[1].ID, seq[1].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.HasOverlay() {
		t.Fatal("expected overlay cleared")
	}
	if rendered.IDs()[0] != seq[0].ID {
		t.Fatal("expected authoritative rendering after cancel")
	}

	// Unknown target is a cancel too.
	r.ApplyAuthoritative(context.Background(), seq)
	if _, err := r.OnDragEnd(context.Background(), seq[0].ID, uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.HasOverlay() {
		t.Fatal("expected no overlay for unknown target")
	}
}

func TestOverlayRetainedOnEqualMembership(t *testing.T) {
	writer := &stubWriter{}
	sched := &manualScheduler{}
	r := testReconciler(t, writer, sched)

	seq := sequenceOf(4)
	r.ApplyAuthoritative(context.Background(), seq)
	optimistic, err := r.OnDragEnd(context.Background(), seq[3].ID, seq[0].ID)
	if err != nil {
		t.Fatalf("drag: %v", err)
	}

	// The feed catches up with the same membership in server order.
	rendered := r.ApplyAuthoritative(context.Background(), seq.Clone())
	if !r.HasOverlay() {
		t.Fatal("expected overlay retained on equal membership")
	}
	if rendered.IDs()[0] != optimistic.IDs()[0] {
		t.Fatal("expected overlay to keep rendering")
	}

	// The scheduled clear hands rendering back to the authoritative feed.
	sched.fire(t)
	if r.HasOverlay() {
		t.Fatal("expected overlay cleared after settle delay")
	}
	if got := r.Rendered().IDs()[0]; got != seq[0].ID {
		t.Fatalf("expected authoritative order, got %s first", got)
	}
}

func TestOverlayDiscardedOnMembershipChange(t *testing.T) {
	writer := &stubWriter{}
	sched := &manualScheduler{}
	r := testReconciler(t, writer, sched)

	seq := sequenceOf(4)
	r.ApplyAuthoritative(context.Background(), seq)
	if _, err := r.OnDragEnd(context.Background(), seq[3].ID, seq[0].ID); err != nil {
		t.Fatalf("drag: %v", err)
	}

	// Another actor deleted an item.
	shrunk := seq[:3].Clone()
	rendered := r.ApplyAuthoritative(context.Background(), shrunk)
	if r.HasOverlay() {
		t.Fatal("expected overlay discarded on membership change")
	}
	if len(rendered) != 3 {
		t.Fatalf("expected authoritative rendering, got %d items", len(rendered))
	}

	// The stale scheduled clear must be a no-op.
	if len(sched.pending) > 0 {
		sched.fire(t)
	}
	if len(r.Rendered()) != 3 {
		t.Fatal("stale clear corrupted rendering")
	}
}

func TestDragWriteFailureRevertsOverlay(t *testing.T) {
	writer := &stubWriter{err: context.DeadlineExceeded}
	r := testReconciler(t, writer, &manualScheduler{})

	seq := sequenceOf(3)
	r.ApplyAuthoritative(context.Background(), seq)

	rendered, err := r.OnDragEnd(context.Background(), seq[2].ID, seq[0].ID)
	if err == nil {
		t.Fatal("expected error")
	}
	if r.HasOverlay() {
		t.Fatal("expected overlay reverted on write failure")
	}
	if rendered.IDs()[0] != seq[0].ID {
		t.Fatal("expected authoritative rendering after revert")
	}
}

func TestSecondDragCancelsScheduledClear(t *testing.T) {
	writer := &stubWriter{}
	sched := &manualScheduler{}
	r := testReconciler(t, writer, sched)

	seq := sequenceOf(4)
	r.ApplyAuthoritative(context.Background(), seq)
	if _, err := r.OnDragEnd(context.Background(), seq[3].ID, seq[0].ID); err != nil {
		t.Fatalf("drag: %v", err)
	}
	if _, err := r.OnDragEnd(context.Background(), seq[1].ID, seq[2].ID); err != nil {
		t.Fatalf("drag: %v", err)
	}
	if sched.cancelled == 0 {
		t.Fatal("expected the first scheduled clear to be cancelled")
	}
	if len(writer.batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(writer.batches))
	}
}

func TestSortByCapturedDate(t *testing.T) {
	writer := &stubWriter{}
	r := testReconciler(t, writer, &manualScheduler{})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cap1 := base.Add(-2 * time.Hour)
	cap2 := base.Add(-4 * time.Hour)
	seq := Sequence{
		{ID: uuid.New(), CreatedAt: base, CapturedAt: &cap1},
		{ID: uuid.New(), CreatedAt: base.Add(-3 * time.Hour)}, // no capture time
		{ID: uuid.New(), CreatedAt: base, CapturedAt: &cap2},
	}
	r.ApplyAuthoritative(context.Background(), seq)

	if err := r.SortByCapturedDate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.HasOverlay() {
		t.Fatal("bulk sort must not create an overlay")
	}

	if len(writer.batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(writer.batches))
	}
	got := writer.batches[0]
	want := []uuid.UUID{seq[2].ID, seq[1].ID, seq[0].ID}
	for i := range want {
		if got[i].ID != want[i] || got[i].Index != i {
			t.Fatalf("assignment %d: got (%s,%d) want (%s,%d)", i, got[i].ID, got[i].Index, want[i], i)
		}
	}
}
