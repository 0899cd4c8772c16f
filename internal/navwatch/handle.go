package navwatch

import (
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"sjsage522/navwatcher/logger"
	werrors "sjsage522/navwatcher/pkg/errors"
)

// WatchHandle owns the poll timer and mutation observer for one watch
// session. A handle is created on every inactive→active transition and
// released on the way back; a released handle never runs its callback
// again, no matter which timer or observer notification is still in
// flight.
type WatchHandle struct {
	page    Page
	onReady ReadyFunc
	opts    Options
	gen     uint64
	log     *logger.Logger

	clk    clock.Clock
	ticker *clock.Ticker
	done   chan struct{}

	released atomic.Bool

	mu      sync.Mutex
	fired   bool // callback has fired during this session
	present bool // target element currently in the document
	detach  func()
}

func newWatchHandle(page Page, onReady ReadyFunc, opts Options, gen uint64) *WatchHandle {
	h := &WatchHandle{
		page:    page,
		onReady: onReady,
		opts:    opts,
		gen:     gen,
		log:     opts.Logger.WithField("generation", gen),
		clk:     opts.Clock,
		done:    make(chan struct{}),
	}
	// The ticker exists before the session goroutine so that a mock
	// clock advanced right after start drives the first poll cycle.
	h.ticker = h.clk.Ticker(h.opts.PollInterval)
	return h
}

func (h *WatchHandle) start() {
	go h.run()
}

func (h *WatchHandle) run() {
	defer h.ticker.Stop()

	if !h.pollForReady() {
		return
	}
	if !h.attachObserver() {
		return
	}
	<-h.done
}

// pollForReady polls for the readiness selector at the configured
// cadence. It returns false when the handle was released mid-poll, true
// when the session moves on to the observer phase (whether or not the
// element was found).
func (h *WatchHandle) pollForReady() bool {
	for attempts := 0; attempts < h.opts.MaxPollAttempts; {
		select {
		case <-h.done:
			return false
		case <-h.ticker.C:
			if h.released.Load() {
				return false
			}
			attempts++

			el, found, err := h.page.Find(h.opts.ReadySelector)
			if err != nil {
				h.log.Warn().Err(err).Int("attempt", attempts).Msg("readiness query failed")
				continue
			}
			if found {
				h.fire(el)
				return true
			}
			if attempts >= h.opts.MaxPollAttempts {
				// Non-fatal: the observer stays armed and may still
				// catch a late appearance.
				werr := werrors.NewReadiness("", h.opts.ReadySelector, attempts)
				h.log.Warn().Err(werr).Msg("readiness poll exhausted")
			}
		}
	}
	return true
}

// attachObserver attaches the mutation observer to the observe root,
// retrying at the poll cadence when the root is not in the document yet.
// Returns false when the handle was released.
func (h *WatchHandle) attachObserver() bool {
	for attempts := 1; ; attempts++ {
		if h.released.Load() {
			return false
		}

		detach, err := h.page.ObserveMutations(h.opts.ObserveRoot, h.onMutation)
		if err == nil {
			h.mu.Lock()
			if h.released.Load() {
				h.mu.Unlock()
				detach()
				return false
			}
			h.detach = detach
			h.mu.Unlock()
			return true
		}

		if attempts >= h.opts.MaxPollAttempts {
			werr := werrors.NewObserver("", "observer attach gave up", err)
			h.log.Warn().Err(werr).Int("attempts", attempts).Msg("mutation observer not attached")
			return true
		}

		select {
		case <-h.done:
			return false
		case <-h.ticker.C:
		}
	}
}

// onMutation re-validates the readiness selector whenever the observed
// subtree changes. Three cases matter: a late first appearance after the
// poll budget ran out, the host's re-render removing the target, and the
// target coming back (which re-fires only when re-validation is on).
func (h *WatchHandle) onMutation() {
	if h.released.Load() {
		return
	}

	el, found, err := h.page.Find(h.opts.ReadySelector)
	if err != nil {
		h.log.Debug().Err(err).Msg("re-validation query failed")
		return
	}

	h.mu.Lock()
	fire := false
	switch {
	case !h.fired && found:
		fire = true
	case h.fired && h.present && !found:
		h.present = false
	case h.fired && !h.present && found && !h.opts.DisableRevalidate:
		fire = true
	}
	if fire {
		h.fired = true
		h.present = true
	}
	h.mu.Unlock()

	if fire && !h.released.Load() {
		h.invoke(el)
	}
}

// fire marks the session fired and invokes the callback. Called from
// the poll loop on first discovery.
func (h *WatchHandle) fire(el Element) {
	h.mu.Lock()
	h.fired = true
	h.present = true
	h.mu.Unlock()
	h.invoke(el)
}

// invoke isolates callback panics per-invocation; the watcher's own
// timers and observers must outlive a broken consumer.
func (h *WatchHandle) invoke(el Element) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error().Err(werrors.NewCallback("", rec)).Msg("ready callback failed")
		}
	}()
	h.onReady(el)
}

// Fired reports whether the callback has fired during this session.
func (h *WatchHandle) Fired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fired
}

// Release synchronously stops the poll timer and disconnects the
// mutation observer. Timer and observer callbacks still in flight check
// the released flag and become no-ops, so no callback for this handle
// fires after Release returns. Idempotent.
func (h *WatchHandle) Release() {
	if h.released.Swap(true) {
		return
	}
	close(h.done)
	h.ticker.Stop()

	h.mu.Lock()
	detach := h.detach
	h.detach = nil
	h.mu.Unlock()
	if detach != nil {
		detach()
	}
}
