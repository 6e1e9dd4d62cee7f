package gallery

import (
	"time"

	"github.com/crewboard/crewboard-backend/pkg/db/models"
	"github.com/google/uuid"
)

// Item is the gallery's view of one media record.
type Item struct {
	ID           uuid.UUID  `json:"id"`
	URL          string     `json:"url"`
	FileName     string     `json:"file_name"`
	MimeType     string     `json:"mime_type"`
	Width        int        `json:"width,omitempty"`
	Height       int        `json:"height,omitempty"`
	CapturedAt   *time.Time `json:"captured_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	DisplayOrder *int       `json:"display_order,omitempty"`
	Published    bool       `json:"published"`
}

// Sequence is an ordered gallery snapshot.
type Sequence []Item

// IDs returns the identities in sequence order.
func (s Sequence) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(s))
	for i, item := range s {
		ids[i] = item.ID
	}
	return ids
}

// IDSet returns the identities as a membership set.
func (s Sequence) IDSet() map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(s))
	for _, item := range s {
		set[item.ID] = struct{}{}
	}
	return set
}

// Clone returns an independent copy.
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	out := make(Sequence, len(s))
	copy(out, s)
	return out
}

func (s Sequence) indexOf(id uuid.UUID) int {
	for i, item := range s {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// sameIDSet compares membership only; order is irrelevant.
func sameIDSet(a, b Sequence) bool {
	if len(a) != len(b) {
		return false
	}
	set := a.IDSet()
	for _, item := range b {
		if _, ok := set[item.ID]; !ok {
			return false
		}
	}
	return true
}

// moveItem relocates one element to the target index, preserving the relative
// order of everything else. A single-item list move, not a swap.
func moveItem(s Sequence, from, to int) Sequence {
	out := s.Clone()
	if from < 0 || from >= len(out) || to < 0 || to >= len(out) || from == to {
		return out
	}
	item := out[from]
	out = append(out[:from], out[from+1:]...)

	rest := make(Sequence, 0, len(out)+1)
	rest = append(rest, out[:to]...)
	rest = append(rest, item)
	rest = append(rest, out[to:]...)
	return rest
}

func itemFromModel(m models.Media) Item {
	return Item{
		ID:           m.ID,
		URL:          m.URL,
		FileName:     m.FileName,
		MimeType:     m.MimeType,
		Width:        m.Width,
		Height:       m.Height,
		CapturedAt:   m.CapturedAt,
		CreatedAt:    m.CreatedAt,
		DisplayOrder: m.DisplayOrder,
		Published:    m.Published,
	}
}

// SequenceFromModels converts an authoritative query result.
func SequenceFromModels(rows []models.Media) Sequence {
	out := make(Sequence, len(rows))
	for i, m := range rows {
		out[i] = itemFromModel(m)
	}
	return out
}
