package gallery

import (
	"context"
	"fmt"

	"github.com/crewboard/crewboard-backend/pkg/logger"
	"github.com/google/uuid"
)

type writeNotifier interface {
	GalleryChanged(ctx context.Context) error
}

// Service is the gallery engine facade: the live feed, the ordering
// reconciler, the selection, and the batch mutator behind one surface.
type Service interface {
	Run(ctx context.Context) error
	Subscribe(ctx context.Context) (<-chan Sequence, func(), error)
	Rendered(ctx context.Context) (Sequence, error)
	Reorder(ctx context.Context, fromID, toID uuid.UUID) (Sequence, error)
	SortByCapturedDate(ctx context.Context) error
	SelectAll(ctx context.Context, selected bool) []uuid.UUID
	ToggleSelection(ctx context.Context, id uuid.UUID, selected bool) []uuid.UUID
	Publish(ctx context.Context, ids []uuid.UUID, published bool) error
	RequestDelete(ctx context.Context, ids []uuid.UUID) (DeleteState, error)
	ConfirmDelete(ctx context.Context) (DeleteState, error)
	CancelDelete(ctx context.Context) DeleteState
	DeleteStatus() (DeleteState, []uuid.UUID)
}

type service struct {
	feed       *Feed
	reconciler *Reconciler
	selection  *Selection
	flow       *DeleteFlow
	mutator    *BatchMutator
	notifier   writeNotifier
	hub        *hub
	logg       *logger.Logger
}

// NewService assembles the gallery engine.
func NewService(
	feed *Feed,
	reconciler *Reconciler,
	mutator *BatchMutator,
	notifier writeNotifier,
	logg *logger.Logger,
) (Service, error) {
	if feed == nil {
		return nil, fmt.Errorf("feed required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	if mutator == nil {
		return nil, fmt.Errorf("batch mutator required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("change notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}

	s := &service{
		feed:       feed,
		reconciler: reconciler,
		selection:  NewSelection(),
		flow:       NewDeleteFlow(),
		mutator:    mutator,
		notifier:   notifier,
		hub:        newHub(),
		logg:       logg,
	}
	reconciler.OnRender(s.hub.broadcast)
	return s, nil
}

// Run drives the feed loop until the context ends.
func (s *service) Run(ctx context.Context) error {
	return s.feed.Run(ctx, s.applyPush)
}

func (s *service) applyPush(ctx context.Context, authoritative Sequence) {
	rendered := s.reconciler.ApplyAuthoritative(ctx, authoritative)
	s.selection.Prune(authoritative)
	s.hub.broadcast(rendered)
}

// Subscribe registers a stream consumer and delivers the current rendered
// sequence as its first element.
func (s *service) Subscribe(ctx context.Context) (<-chan Sequence, func(), error) {
	current, err := s.Rendered(ctx)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.subscribe()

	out := make(chan Sequence, 1)
	out <- current
	go func() {
		defer close(out)
		for seq := range ch {
			select {
			case <-out:
			default:
			}
			select {
			case out <- seq:
			default:
			}
		}
	}()
	return out, cancel, nil
}

// Rendered returns what a subscriber would see right now. Before the feed
// loop has primed the reconciler, it falls back to a direct query.
func (s *service) Rendered(ctx context.Context) (Sequence, error) {
	if seq := s.reconciler.Rendered(); seq != nil {
		return seq, nil
	}
	snapshot, err := s.feed.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.reconciler.ApplyAuthoritative(ctx, snapshot), nil
}

// Reorder applies one drag gesture and broadcasts the optimistic result.
func (s *service) Reorder(ctx context.Context, fromID, toID uuid.UUID) (Sequence, error) {
	if _, err := s.Rendered(ctx); err != nil {
		return nil, err
	}
	rendered, err := s.reconciler.OnDragEnd(ctx, fromID, toID)
	s.hub.broadcast(rendered)
	if err != nil {
		return rendered, err
	}
	s.notifyChanged(ctx)
	return rendered, nil
}

// SortByCapturedDate performs the destructive bulk reorder.
func (s *service) SortByCapturedDate(ctx context.Context) error {
	if _, err := s.Rendered(ctx); err != nil {
		return err
	}
	if err := s.reconciler.SortByCapturedDate(ctx); err != nil {
		return err
	}
	s.notifyChanged(ctx)
	return nil
}

// SelectAll replaces the selection with the full rendered identity set.
func (s *service) SelectAll(ctx context.Context, selected bool) []uuid.UUID {
	rendered := s.reconciler.Rendered()
	s.selection.SelectAll(rendered, selected)
	return s.selection.IDs()
}

// ToggleSelection flips one identity in or out of the selection.
func (s *service) ToggleSelection(_ context.Context, id uuid.UUID, selected bool) []uuid.UUID {
	s.selection.Toggle(id, selected)
	return s.selection.IDs()
}

// Publish toggles the publish flag across the batch; an empty id list means
// the current selection. The selection clears either way, so a retry starts
// from what the user can see, not from a half-applied ghost.
func (s *service) Publish(ctx context.Context, ids []uuid.UUID, published bool) error {
	if len(ids) == 0 {
		ids = s.selection.IDs()
	}
	err := s.mutator.Publish(ctx, ids, published)
	s.selection.Clear()
	s.notifyChanged(ctx)
	return err
}

// RequestDelete stages a batch delete for confirmation.
func (s *service) RequestDelete(_ context.Context, ids []uuid.UUID) (DeleteState, error) {
	if len(ids) == 0 {
		ids = s.selection.IDs()
	}
	if err := s.flow.Request(ids); err != nil {
		return s.flow.State(), err
	}
	return s.flow.State(), nil
}

// ConfirmDelete executes the staged batch. Success clears the selection;
// failure keeps both selection and batch so the user can retry.
func (s *service) ConfirmDelete(ctx context.Context) (DeleteState, error) {
	ids, err := s.flow.BeginDelete()
	if err != nil {
		return s.flow.State(), err
	}

	if err := s.mutator.Delete(ctx, ids); err != nil {
		s.flow.Finish(false)
		return s.flow.State(), err
	}

	s.flow.Finish(true)
	s.selection.Clear()
	s.notifyChanged(ctx)
	return s.flow.State(), nil
}

// CancelDelete abandons a pending confirmation.
func (s *service) CancelDelete(context.Context) DeleteState {
	s.flow.Cancel()
	return s.flow.State()
}

// DeleteStatus reports the flow phase and the staged batch.
func (s *service) DeleteStatus() (DeleteState, []uuid.UUID) {
	return s.flow.State(), s.flow.Pending()
}

func (s *service) notifyChanged(ctx context.Context) {
	if err := s.notifier.GalleryChanged(ctx); err != nil {
		s.logg.Warn(ctx, "gallery change signal failed")
	}
}
