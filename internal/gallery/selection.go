package gallery

import (
	"sync"

	"github.com/google/uuid"
)

// Selection is the set of identities chosen for batch operations. It is
// pruned against every authoritative push so a record deleted elsewhere
// never rides into the next batch.
type Selection struct {
	mu  sync.Mutex
	ids map[uuid.UUID]struct{}
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{ids: make(map[uuid.UUID]struct{})}
}

// SelectAll sets the selection to the full rendered identity set, or clears it.
func (s *Selection) SelectAll(rendered Sequence, selected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[uuid.UUID]struct{})
	if !selected {
		return
	}
	for _, item := range rendered {
		s.ids[item.ID] = struct{}{}
	}
}

// Toggle adds or removes one identity.
func (s *Selection) Toggle(id uuid.UUID, selected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if selected {
		s.ids[id] = struct{}{}
		return
	}
	delete(s.ids, id)
}

// Prune drops identities no longer present in the authoritative sequence.
func (s *Selection) Prune(authoritative Sequence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	present := authoritative.IDSet()
	for id := range s.ids {
		if _, ok := present[id]; !ok {
			delete(s.ids, id)
		}
	}
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[uuid.UUID]struct{})
}

// IDs returns the selected identities in unspecified order.
func (s *Selection) IDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

// Len reports the selection size.
func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
