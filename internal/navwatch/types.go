package navwatch

import (
	"time"

	"github.com/benbjohnson/clock"

	"sjsage522/navwatcher/logger"
)

// RoutePredicate decides whether a URL represents the page of interest.
// It must be a pure function of the URL; it is re-evaluated on every
// navigation signal.
type RoutePredicate func(url string) bool

// ReadyFunc is invoked with the first element matching the readiness
// selector. Panics are contained per-invocation and never tear down the
// watcher.
type ReadyFunc func(el Element)

// Element is an opaque handle to a matched DOM element.
type Element interface {
	// Text returns the visible text content of the element
	Text() (string, error)

	// HTML returns the outer HTML of the element
	HTML() (string, error)
}

// Page is the document surface a watcher reads. Implementations wrap a
// live browser tab or a periodically re-fetched HTML snapshot; the
// watcher core cannot tell the difference.
type Page interface {
	// CurrentURL returns the page's current location
	CurrentURL() string

	// Find returns the first element matching the selector. An empty
	// selector means the document root.
	Find(selector string) (Element, bool, error)

	// ObserveMutations arranges for fn to run whenever the subtree under
	// rootSelector mutates. It returns a detach function, or an error
	// when the root is not (yet) in the document.
	ObserveMutations(rootSelector string, fn func()) (detach func(), err error)
}

// Signal identifies which navigation source produced a notification.
type Signal string

const (
	// SignalInitial is the initial document-ready signal
	SignalInitial Signal = "initial"
	// SignalHistory is a programmatic history mutation (pushState/replaceState)
	SignalHistory Signal = "history"
	// SignalPopState is a browser back/forward navigation
	SignalPopState Signal = "popstate"
)

// Options tunes a single registration.
type Options struct {
	// PollInterval is the cadence for readiness polling and observer
	// attach retries. Default: 200ms.
	PollInterval time.Duration

	// MaxPollAttempts bounds both the readiness poll and the observer
	// attach retries. Default: 50.
	MaxPollAttempts int

	// ReadySelector identifies the element whose appearance signals
	// "safe to act". Empty means the document root.
	ReadySelector string

	// ObserveRoot is the selector the mutation observer attaches to.
	// Empty means the document root.
	ObserveRoot string

	// DisableRevalidate opts out of re-firing the callback when the host
	// page removes and re-inserts the target element. Re-validation is
	// on by default.
	DisableRevalidate bool

	// Clock overrides the wall clock. Tests pass a mock.
	Clock clock.Clock

	// Logger overrides the default watcher logger.
	Logger *logger.Logger
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	if o.MaxPollAttempts <= 0 {
		o.MaxPollAttempts = 50
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = logger.ForWatcher("")
	}
}
