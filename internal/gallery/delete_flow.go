package gallery

import (
	"sync"

	pkgerrors "github.com/crewboard/crewboard-backend/pkg/errors"
	"github.com/google/uuid"
)

// DeleteState names the phases of the batch delete confirmation.
type DeleteState string

const (
	DeleteStateIdle       DeleteState = "idle"
	DeleteStateConfirming DeleteState = "confirming"
	DeleteStateDeleting   DeleteState = "deleting"
)

// DeleteFlow is the confirmation state machine for destructive batch deletes:
// idle → confirming → deleting → idle on success, back to confirming on
// failure so the same batch can be retried.
type DeleteFlow struct {
	mu      sync.Mutex
	state   DeleteState
	pending []uuid.UUID
}

// NewDeleteFlow starts in idle.
func NewDeleteFlow() *DeleteFlow {
	return &DeleteFlow{state: DeleteStateIdle}
}

// State returns the current phase.
func (f *DeleteFlow) State() DeleteState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Pending returns the identities staged for deletion.
func (f *DeleteFlow) Pending() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.pending...)
}

// Request stages a batch and moves idle → confirming.
func (f *DeleteFlow) Request(ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != DeleteStateIdle {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "a delete is already pending")
	}
	if len(ids) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "nothing selected to delete")
	}
	f.pending = append([]uuid.UUID(nil), ids...)
	f.state = DeleteStateConfirming
	return nil
}

// BeginDelete moves confirming → deleting and hands back the staged batch.
func (f *DeleteFlow) BeginDelete() ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != DeleteStateConfirming {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no delete awaiting confirmation")
	}
	f.state = DeleteStateDeleting
	return append([]uuid.UUID(nil), f.pending...), nil
}

// Finish records the outcome: success lands in idle with the batch dropped,
// failure returns to confirming with the batch kept for retry.
func (f *DeleteFlow) Finish(succeeded bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != DeleteStateDeleting {
		return
	}
	if succeeded {
		f.state = DeleteStateIdle
		f.pending = nil
		return
	}
	f.state = DeleteStateConfirming
}

// Cancel abandons a pending confirmation.
func (f *DeleteFlow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == DeleteStateConfirming {
		f.state = DeleteStateIdle
		f.pending = nil
	}
}
