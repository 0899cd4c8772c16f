package target

import (
	"strings"
	"time"

	"sjsage522/navwatcher/helpers"
	"sjsage522/navwatcher/internal/navwatch"
	"sjsage522/navwatcher/logger"
	werrors "sjsage522/navwatcher/pkg/errors"
)

// eventBuffer bounds the per-session event channel; a slow consumer
// drops events rather than blocking the watcher callback.
const eventBuffer = 16

// Session binds a Target to a navigation watcher over a live page and
// surfaces readiness as ReadyEvents.
type Session struct {
	target  Target
	page    navwatch.Page
	watcher *navwatch.Watcher
	events  chan ReadyEvent
	log     *logger.Logger
}

// NewSession creates a session. Call Start to register the watcher.
func NewSession(t Target, page navwatch.Page, hub *navwatch.Hub) *Session {
	return &Session{
		target:  t,
		page:    page,
		watcher: navwatch.New(page, hub),
		events:  make(chan ReadyEvent, eventBuffer),
		log:     logger.ForWatcher(t.ID),
	}
}

// Start compiles the route and registers the readiness watcher.
func (s *Session) Start() error {
	pred, err := s.target.Route.Predicate()
	if err != nil {
		return werrors.NewConfiguration("route for target "+s.target.ID, err)
	}

	opts := s.target.Options()
	opts.Logger = s.log
	s.watcher.Register(pred, s.onReady, opts)

	s.log.Info().
		Str("url", s.target.URL).
		Str("mode", s.target.Mode).
		Str("ready_selector", s.target.ReadySelector).
		Msg("Watching target")
	return nil
}

func (s *Session) onReady(el navwatch.Element) {
	text, err := el.Text()
	if err != nil {
		s.log.Debug().Err(err).Msg("Element text unavailable")
	}

	ev := ReadyEvent{
		TargetID: s.target.ID,
		Provider: s.target.Provider,
		URL:      s.page.CurrentURL(),
		Selector: s.target.ReadySelector,
		Text:     strings.TrimSpace(text),
		FiredAt:  time.Now(),
	}

	// First path segment identifies the funnel view in the logs.
	view, _ := helpers.GetSplitPart(strings.TrimPrefix(helpers.PathOf(ev.URL), "/"), "/", 0)
	s.log.Info().Str("view", view).Str("url", ev.URL).Msg("Route ready")

	select {
	case s.events <- ev:
	default:
		s.log.Warn().Str("url", ev.URL).Msg("Event buffer full, dropping readiness event")
	}
}

// TargetID returns the target's identifier
func (s *Session) TargetID() string { return s.target.ID }

// Provider returns the target's provider name
func (s *Session) Provider() string { return s.target.Provider }

// Events returns the readiness event channel. The channel is never
// closed; consumers stop on their own context.
func (s *Session) Events() <-chan ReadyEvent { return s.events }

// Stop releases the watcher; no event is emitted afterwards.
func (s *Session) Stop() {
	s.watcher.Close()
}
