package navwatch

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

const testInterval = 200 * time.Millisecond

func bookingRoute(url string) bool {
	return strings.Contains(url, "/book")
}

// advance moves the mock clock one poll cycle at a time, yielding to the
// session goroutine between cycles so no tick is dropped.
func advance(clk *clock.Mock, cycles int) {
	for i := 0; i < cycles; i++ {
		clk.Add(testInterval)
		time.Sleep(5 * time.Millisecond)
	}
}

// settle lets freshly started goroutines park in their select loops.
func settle() {
	time.Sleep(20 * time.Millisecond)
}

func newTestWatcher(t *testing.T, page *fakePage, opts Options) (*Watcher, *Hub, *clock.Mock, *atomic.Int32) {
	t.Helper()
	clk := clock.NewMock()
	opts.Clock = clk

	hub := NewHub()
	w := New(page, hub)

	var fires atomic.Int32
	w.Register(bookingRoute, func(el Element) {
		fires.Add(1)
	}, opts)
	t.Cleanup(w.Close)
	settle()

	return w, hub, clk, &fires
}

func TestFiresOnceWhenElementAppears(t *testing.T) {
	page := newFakePage("https://example.com/")
	_, hub, clk, fires := newTestWatcher(t, page, Options{
		PollInterval:  testInterval,
		ReadySelector: ".total-price",
	})

	page.SetURL("https://example.com/book/checkout")
	hub.Notify(SignalHistory, page.CurrentURL())
	settle()

	// Two empty cycles, then the host renders the element on the third.
	advance(clk, 2)
	assert.Equal(t, int32(0), fires.Load())

	page.SetPresent(".total-price", true)
	advance(clk, 1)
	assert.Eventually(t, func() bool { return fires.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Further cycles must not re-fire.
	advance(clk, 3)
	assert.Equal(t, int32(1), fires.Load())
}

func TestReadinessFlagLifecycle(t *testing.T) {
	page := newFakePage("https://example.com/book/checkout")
	page.SetPresent(".total-price", true)
	w, hub, clk, fires := newTestWatcher(t, page, Options{
		PollInterval:  testInterval,
		ReadySelector: ".total-price",
	})

	reg := w.regs[0]
	assert.False(t, reg.Ready())

	advance(clk, 1)
	assert.Eventually(t, func() bool { return fires.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, reg.Ready())

	// Leaving the route clears the flag and the observer.
	page.SetURL("https://example.com/search")
	hub.Notify(SignalHistory, page.CurrentURL())
	settle()
	assert.False(t, reg.Ready())
	assert.Equal(t, 0, page.ObserverCount())
}

func TestDuplicateSignalsAreIdempotent(t *testing.T) {
	page := newFakePage("https://example.com/book/checkout")
	page.SetPresent(".total-price", true)
	w, hub, clk, fires := newTestWatcher(t, page, Options{
		PollInterval:  testInterval,
		ReadySelector: ".total-price",
	})

	// The same location reported again by a second signal source must
	// not restart the session.
	hub.Notify(SignalHistory, page.CurrentURL())
	hub.Notify(SignalPopState, page.CurrentURL())
	settle()

	reg := w.regs[0]
	reg.mu.Lock()
	gen := reg.gen
	reg.mu.Unlock()
	assert.Equal(t, uint64(1), gen)

	advance(clk, 1)
	assert.Eventually(t, func() bool { return fires.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Notify(SignalHistory, page.CurrentURL())
	advance(clk, 2)
	assert.Equal(t, int32(1), fires.Load())
}

func TestReleaseStopsTimersAndObserver(t *testing.T) {
	page := newFakePage("https://example.com/book/checkout")
	page.SetPresent(".total-price", true)
	_, hub, clk, fires := newTestWatcher(t, page, Options{
		PollInterval:  testInterval,
		ReadySelector: ".total-price",
	})

	advance(clk, 1)
	assert.Eventually(t, func() bool { return fires.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return page.ObserverCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	page.SetURL("https://example.com/search")
	hub.Notify(SignalPopState, page.CurrentURL())
	settle()
	assert.Equal(t, 0, page.ObserverCount())

	// Advancing simulated time after release must produce zero
	// invocations, even with the element present and mutations firing.
	advance(clk, 5)
	page.Mutate()
	settle()
	assert.Equal(t, int32(1), fires.Load())
}

func TestPollExhaustionKeepsObserverArmed(t *testing.T) {
	page := newFakePage("https://example.com/book/checkout")
	_, _, clk, fires := newTestWatcher(t, page, Options{
		PollInterval:    testInterval,
		MaxPollAttempts: 3,
		ReadySelector:   ".total-price",
	})

	// Element never appears within the attempt budget.
	advance(clk, 3)
	assert.Equal(t, int32(0), fires.Load())
	assert.Eventually(t, func() bool { return page.ObserverCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// A late appearance is still caught through the observer.
	page.SetPresent(".total-price", true)
	page.Mutate()
	assert.Eventually(t, func() bool { return fires.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRevalidateRefiresOnReinsertion(t *testing.T) {
	page := newFakePage("https://example.com/book/checkout")
	page.SetPresent(".total-price", true)
	_, _, clk, fires := newTestWatcher(t, page, Options{
		PollInterval:  testInterval,
		ReadySelector: ".total-price",
	})

	advance(clk, 1)
	assert.Eventually(t, func() bool { return fires.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return page.ObserverCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Host virtual-DOM re-render: target removed, then re-created.
	page.SetPresent(".total-price", false)
	page.Mutate()
	page.SetPresent(".total-price", true)
	page.Mutate()
	assert.Eventually(t, func() bool { return fires.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestRevalidateDisabled(t *testing.T) {
	page := newFakePage("https://example.com/book/checkout")
	page.SetPresent(".total-price", true)
	_, _, clk, fires := newTestWatcher(t, page, Options{
		PollInterval:      testInterval,
		ReadySelector:     ".total-price",
		DisableRevalidate: true,
	})

	advance(clk, 1)
	assert.Eventually(t, func() bool { return fires.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return page.ObserverCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	page.SetPresent(".total-price", false)
	page.Mutate()
	page.SetPresent(".total-price", true)
	page.Mutate()
	settle()
	assert.Equal(t, int32(1), fires.Load())
}

func TestObserverAttachRetries(t *testing.T) {
	page := newFakePage("https://example.com/book/checkout")
	page.SetPresent(".total-price", true)
	page.FailNextObserves(2)
	_, _, clk, fires := newTestWatcher(t, page, Options{
		PollInterval:    testInterval,
		MaxPollAttempts: 5,
		ReadySelector:   ".total-price",
	})

	advance(clk, 1)
	assert.Eventually(t, func() bool { return fires.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, page.ObserverCount())

	// Attach retries run at the polling cadence until the root exists.
	advance(clk, 2)
	assert.Eventually(t, func() bool { return page.ObserverCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestCallbackPanicIsContained(t *testing.T) {
	page := newFakePage("https://example.com/book/checkout")
	page.SetPresent(".total-price", true)

	clk := clock.NewMock()
	hub := NewHub()
	w := New(page, hub)
	defer w.Close()

	var fires atomic.Int32
	w.Register(bookingRoute, func(el Element) {
		fires.Add(1)
		panic("consumer bug")
	}, Options{
		PollInterval:  testInterval,
		ReadySelector: ".total-price",
		Clock:         clk,
	})
	settle()

	advance(clk, 1)
	assert.Eventually(t, func() bool { return fires.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// The session survived the panic: the observer is attached and
	// re-validation still works.
	assert.Eventually(t, func() bool { return page.ObserverCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	page.SetPresent(".total-price", false)
	page.Mutate()
	page.SetPresent(".total-price", true)
	page.Mutate()
	assert.Eventually(t, func() bool { return fires.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestRegistrationsAreIndependent(t *testing.T) {
	page := newFakePage("https://example.com/book/checkout")
	page.SetPresent(".total-price", true)
	page.SetPresent(".room-list", true)

	clk := clock.NewMock()
	hub := NewHub()
	w := New(page, hub)
	defer w.Close()

	var a, b atomic.Int32
	w.Register(bookingRoute, func(el Element) { a.Add(1) }, Options{
		PollInterval: testInterval, ReadySelector: ".total-price", Clock: clk,
	})
	w.Register(func(url string) bool { return strings.Contains(url, "/rooms") },
		func(el Element) { b.Add(1) }, Options{
			PollInterval: testInterval, ReadySelector: ".room-list", Clock: clk,
		})
	settle()

	advance(clk, 1)
	assert.Eventually(t, func() bool { return a.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), b.Load())

	// Navigating to the second route deactivates the first and
	// activates the second.
	page.SetURL("https://example.com/rooms/12")
	hub.Notify(SignalHistory, page.CurrentURL())
	settle()
	advance(clk, 1)
	assert.Eventually(t, func() bool { return b.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), a.Load())
}

func TestHubSubscribeCancel(t *testing.T) {
	hub := NewHub()

	var got atomic.Int32
	cancel := hub.Subscribe(func(sig Signal, url string) { got.Add(1) })
	hub.Notify(SignalInitial, "https://example.com/")
	assert.Equal(t, int32(1), got.Load())

	cancel()
	cancel() // idempotent
	hub.Notify(SignalHistory, "https://example.com/book")
	assert.Equal(t, int32(1), got.Load())
}
