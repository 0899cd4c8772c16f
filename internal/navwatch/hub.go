package navwatch

import "sync"

// Hub multiplexes navigation signals to every registration on a page.
// The signal sources (initial load, popstate, history mutation) are
// wrapped once, centrally, by the page implementation; each source calls
// Notify and the hub fans out. This replaces the per-caller wrapping of
// history primitives that stacks wrapper chains on the host page.
type Hub struct {
	mu   sync.Mutex
	subs map[int]func(Signal, string)
	next int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(Signal, string))}
}

// Subscribe registers fn for every future signal and returns a cancel
// function. Cancel is idempotent.
func (h *Hub) Subscribe(fn func(Signal, string)) (cancel func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Notify delivers a navigation signal to all subscribers. Subscribers
// run outside the hub lock, in registration order for a single call;
// ordering between concurrent Notify calls is whatever the source
// delivered, which is why registrations treat duplicate signals as
// no-ops.
func (h *Hub) Notify(sig Signal, url string) {
	h.mu.Lock()
	fns := make([]func(Signal, string), 0, len(h.subs))
	for i := 0; i < h.next; i++ {
		if fn, ok := h.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(sig, url)
	}
}
