package gallery

import "sync"

// hub fans rendered sequences out to stream subscribers. Slow consumers lose
// intermediate snapshots, never the latest one.
type hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan Sequence
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]chan Sequence)}
}

func (h *hub) subscribe() (<-chan Sequence, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Sequence, 1)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (h *hub) broadcast(seq Sequence) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		// Replace a pending snapshot rather than block.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- seq:
		default:
		}
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
