// Package navwatch detects when a page matches a route predicate and,
// while matched, guarantees that an "element became ready" callback
// fires exactly once per navigation, even though the host page mutates
// its DOM asynchronously and never reloads between logical views.
//
// Typical usage:
//
//	w := navwatch.New(page, hub)
//	w.Register(pred, func(el navwatch.Element) { /* act */ }, navwatch.Options{
//		ReadySelector: ".total-price",
//	})
package navwatch

import (
	"sync"

	"sjsage522/navwatcher/logger"
)

// Watcher owns the registrations for one page. Create one per page; call
// Register for each route of interest.
type Watcher struct {
	page Page
	hub  *Hub

	mu   sync.Mutex
	regs []*registration
}

// New creates a Watcher bound to a page and its navigation hub.
func New(page Page, hub *Hub) *Watcher {
	return &Watcher{page: page, hub: hub}
}

// Register adds an independently-lifecycled watcher for one route. It
// never fails: misconfigured options are normalized to defaults, and all
// later failures surface through logging only. Multiple Register calls
// are allowed and are not deduplicated.
func (w *Watcher) Register(pred RoutePredicate, onReady ReadyFunc, opts Options) {
	opts.defaults()

	r := &registration{
		page:    w.page,
		pred:    pred,
		onReady: onReady,
		opts:    opts,
		log:     opts.Logger,
	}
	r.cancelSub = w.hub.Subscribe(r.onSignal)

	w.mu.Lock()
	w.regs = append(w.regs, r)
	w.mu.Unlock()

	// The page may already sit on the route when the caller registers
	// (the initial-load signal fired before we subscribed). Evaluate the
	// current location once; idempotence makes a redundant initial
	// signal from the hub a no-op.
	r.onSignal(SignalInitial, w.page.CurrentURL())
}

// Close releases every registration: poll timers stop, observers
// disconnect, and no callback fires afterwards.
func (w *Watcher) Close() {
	w.mu.Lock()
	regs := w.regs
	w.regs = nil
	w.mu.Unlock()

	for _, r := range regs {
		r.close()
	}
}

// registration is one registered route watcher. It tracks whether the
// route currently matches and swaps a WatchHandle on every transition.
type registration struct {
	page    Page
	pred    RoutePredicate
	onReady ReadyFunc
	opts    Options
	log     *logger.Logger

	cancelSub func()

	mu     sync.Mutex
	active bool
	gen    uint64
	handle *WatchHandle
}

// onSignal recomputes the route predicate for every navigation signal.
// Redundant signals with an unchanged match are no-ops, so the three
// underlying sources may deliver in any order and duplicate freely.
func (r *registration) onSignal(sig Signal, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	match := r.pred(url)
	if match == r.active {
		return
	}

	// The prior handle is released before a new one exists; exactly one
	// handle is live per registration at any time.
	if r.handle != nil {
		r.handle.Release()
		r.handle = nil
	}

	r.active = match
	if !match {
		r.log.Debug().Str("signal", string(sig)).Str("url", url).Msg("route deactivated")
		return
	}

	r.gen++
	r.log.Debug().
		Str("signal", string(sig)).
		Str("url", url).
		Uint64("generation", r.gen).
		Msg("route activated")
	r.handle = newWatchHandle(r.page, r.onReady, r.opts, r.gen)
	r.handle.start()
}

// Ready reports whether the callback has fired for the current
// activation. It resets to false on any inactive transition.
func (r *registration) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active && r.handle != nil && r.handle.Fired()
}

func (r *registration) close() {
	if r.cancelSub != nil {
		r.cancelSub()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle != nil {
		r.handle.Release()
		r.handle = nil
	}
	r.active = false
}
