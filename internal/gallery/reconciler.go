package gallery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/crewboard/crewboard-backend/internal/media"
	pkgerrors "github.com/crewboard/crewboard-backend/pkg/errors"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	"github.com/crewboard/crewboard-backend/pkg/metrics"
	"github.com/google/uuid"
)

type orderWriter interface {
	UpdateOrders(ctx context.Context, assignments []media.OrderAssignment) error
}

// Scheduler runs fn after d and returns a cancel func. Injected so the
// overlay-clear delay is testable without real timers.
type Scheduler func(d time.Duration, fn func()) (cancel func())

func timerScheduler(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Reconciler owns the optimistic ordering overlay. Rendering is always
// overlay-if-present, authoritative otherwise. The overlay exists only while
// a reorder is in flight plus a short settle window; membership changes in
// the authoritative feed discard it immediately.
type Reconciler struct {
	mu sync.Mutex

	authoritative Sequence
	overlay       Sequence
	overlayGen    uint64
	cancelClear   func()

	writer   orderWriter
	schedule Scheduler
	delay    time.Duration

	// onRender fires when rendering changes from inside the reconciler
	// (the scheduled overlay clear); pushes driven by callers return the
	// rendered sequence instead.
	onRender func(Sequence)

	metrics *metrics.GalleryMetrics
	logg    *logger.Logger
}

// NewReconciler constructs a reconciler flushing order batches through writer.
func NewReconciler(writer orderWriter, delay time.Duration, logg *logger.Logger, m *metrics.GalleryMetrics) (*Reconciler, error) {
	if writer == nil {
		return nil, fmt.Errorf("order writer required")
	}
	if delay <= 0 {
		return nil, fmt.Errorf("overlay clear delay must be positive")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Reconciler{
		writer:   writer,
		schedule: timerScheduler,
		delay:    delay,
		metrics:  m,
		logg:     logg,
	}, nil
}

// WithScheduler swaps the clear scheduler. Test hook.
func (r *Reconciler) WithScheduler(s Scheduler) *Reconciler {
	if s != nil {
		r.schedule = s
	}
	return r
}

// OnRender registers the hook invoked when the scheduled clear flips
// rendering back to the authoritative sequence.
func (r *Reconciler) OnRender(fn func(Sequence)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRender = fn
}

// Rendered returns the sequence currently being served.
func (r *Reconciler) Rendered() Sequence {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renderedLocked().Clone()
}

// HasOverlay reports whether an optimistic overlay is live.
func (r *Reconciler) HasOverlay() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overlay != nil
}

// ApplyAuthoritative installs a fresh authoritative push and reconciles the
// overlay against it: equal membership keeps the overlay (order is still the
// user's in-flight intent), diverged membership discards it immediately.
// Returns the rendered sequence.
func (r *Reconciler) ApplyAuthoritative(ctx context.Context, seq Sequence) Sequence {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.authoritative = seq.Clone()

	if r.overlay != nil && !sameIDSet(r.overlay, r.authoritative) {
		r.discardOverlayLocked()
		r.metrics.IncOverlayDiscard()
		r.logg.Debug(ctx, "overlay discarded: collection membership changed")
	}

	return r.renderedLocked().Clone()
}

// OnDragEnd applies one drag gesture: move the dragged item over the
// currently rendered sequence, commit the result optimistically, write the
// order batch, and schedule the overlay clear for after the write settles.
// A drag onto itself or onto an unknown target is a cancel.
func (r *Reconciler) OnDragEnd(ctx context.Context, fromID, toID uuid.UUID) (Sequence, error) {
	r.mu.Lock()

	rendered := r.renderedLocked()
	fromIdx := rendered.indexOf(fromID)
	toIdx := rendered.indexOf(toID)

	if fromID == toID || fromIdx < 0 || toIdx < 0 {
		r.discardOverlayLocked()
		out := r.renderedLocked().Clone()
		r.mu.Unlock()
		return out, nil
	}

	moved := moveItem(rendered, fromIdx, toIdx)
	r.overlay = moved
	r.overlayGen++
	generation := r.overlayGen
	if r.cancelClear != nil {
		r.cancelClear()
		r.cancelClear = nil
	}
	assignments := assignmentsFor(moved)
	r.mu.Unlock()

	// The overlay is already rendering; now make the server agree.
	if err := r.writer.UpdateOrders(ctx, assignments); err != nil {
		r.mu.Lock()
		if r.overlayGen == generation {
			r.discardOverlayLocked()
		}
		out := r.renderedLocked().Clone()
		r.mu.Unlock()
		return out, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing order batch")
	}
	r.metrics.IncOrderBatch()

	r.mu.Lock()
	if r.overlayGen == generation && r.overlay != nil {
		r.cancelClear = r.schedule(r.delay, func() {
			r.clearOverlayAfterSettle(generation)
		})
	}
	out := r.renderedLocked().Clone()
	r.mu.Unlock()
	return out, nil
}

// SortByCapturedDate overwrites all manual ordering with ascending capture
// time, falling back to creation time. It goes through the same batch path as
// a drag but never touches the overlay; the change signal carries the result.
func (r *Reconciler) SortByCapturedDate(ctx context.Context) error {
	r.mu.Lock()
	seq := r.authoritative.Clone()
	r.mu.Unlock()

	if len(seq) == 0 {
		return nil
	}

	sort.SliceStable(seq, func(i, j int) bool {
		return capturedOrCreated(seq[i]).Before(capturedOrCreated(seq[j]))
	})

	if err := r.writer.UpdateOrders(ctx, assignmentsFor(seq)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing sorted order batch")
	}
	r.metrics.IncOrderBatch()
	return nil
}

func (r *Reconciler) clearOverlayAfterSettle(generation uint64) {
	r.mu.Lock()
	if generation != r.overlayGen || r.overlay == nil {
		r.mu.Unlock()
		return
	}
	r.overlay = nil
	r.cancelClear = nil
	rendered := r.renderedLocked().Clone()
	onRender := r.onRender
	r.mu.Unlock()

	if onRender != nil {
		onRender(rendered)
	}
}

func (r *Reconciler) renderedLocked() Sequence {
	if r.overlay != nil {
		return r.overlay
	}
	return r.authoritative
}

func (r *Reconciler) discardOverlayLocked() {
	r.overlay = nil
	r.overlayGen++
	if r.cancelClear != nil {
		r.cancelClear()
		r.cancelClear = nil
	}
}

func assignmentsFor(seq Sequence) []media.OrderAssignment {
	out := make([]media.OrderAssignment, len(seq))
	for i, item := range seq {
		out[i] = media.OrderAssignment{ID: item.ID, Index: i}
	}
	return out
}

func capturedOrCreated(item Item) time.Time {
	if item.CapturedAt != nil {
		return *item.CapturedAt
	}
	return item.CreatedAt
}
