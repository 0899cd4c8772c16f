package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"sjsage522/navwatcher/internal/navwatch"
	"sjsage522/navwatcher/logger"
	werrors "sjsage522/navwatcher/pkg/errors"
)

// hookScript wraps the two history-mutating primitives the host page
// uses for client-side routing, listens for back/forward navigations,
// and reports the initial document-ready state. The originals are
// delegated to before any notification is emitted, so the host page's
// observable behavior is unchanged. Installed once per document; the
// guard makes re-evaluation a no-op.
const hookScript = `() => {
	if (window.__navwatchHooked) { return; }
	window.__navwatchHooked = true;

	const emit = (source) => {
		try { window.__navwatchEmit({source: source, url: location.href}); } catch (e) {}
	};

	const wrap = (name) => {
		const original = history[name].bind(history);
		history[name] = function () {
			const result = original.apply(history, arguments);
			emit('history');
			return result;
		};
	};
	wrap('pushState');
	wrap('replaceState');

	window.addEventListener('popstate', () => emit('popstate'));

	if (document.readyState === 'interactive' || document.readyState === 'complete') {
		emit('initial');
	} else {
		window.addEventListener('DOMContentLoaded', () => emit('initial'));
	}
}`

// observeScript attaches a MutationObserver to the observe root and
// reports every subtree change back through the binding. Returns false
// when the root is not in the document.
const observeScript = `(rootSel, id) => {
	const root = rootSel ? document.querySelector(rootSel) : document.documentElement;
	if (!root) { return false; }
	const obs = new MutationObserver(() => {
		try { window.__navwatchEmit({source: 'mutation', id: id}); } catch (e) {}
	});
	obs.observe(root, {childList: true, subtree: true});
	window.__navwatchObservers = window.__navwatchObservers || {};
	window.__navwatchObservers[id] = obs;
	return true;
}`

const detachScript = `(id) => {
	const store = window.__navwatchObservers || {};
	if (store[id]) { store[id].disconnect(); delete store[id]; }
}`

// Session is one stealth tab pinned to a target URL. It implements
// navwatch.Page and feeds the page's navigation hub.
type Session struct {
	page *rod.Page
	hub  *navwatch.Hub
	log  *logger.Logger

	stopExpose func() error

	mu        sync.Mutex
	url       string
	observers map[int]func()
	nextObs   int
}

// Ensure Session implements navwatch.Page
var _ navwatch.Page = (*Session)(nil)

// OpenSession creates a stealth tab, installs the navigation hooks, and
// navigates to the target URL. Navigation signals flow into hub from the
// moment the document starts loading.
func (m *Manager) OpenSession(ctx context.Context, pageURL string, hub *navwatch.Hub) (*Session, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	s := &Session{
		page:      page,
		hub:       hub,
		log:       m.log.WithField("url", pageURL),
		url:       pageURL,
		observers: make(map[int]func()),
	}

	// The binding and the hook must exist before navigation so the
	// initial-load signal is not missed.
	stop, err := page.Expose("__navwatchEmit", s.onEmit)
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: expose binding: %w", err)
	}
	s.stopExpose = stop

	if _, err := page.EvalOnNewDocument(fmt.Sprintf("(%s)()", hookScript)); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: install navigation hooks: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		s.log.Warn().Err(err).Msg("Wait load timeout")
	}

	// The already-parsed document gets the hook too; the installed guard
	// keeps this from double-wrapping.
	if _, err := page.Eval(hookScript); err != nil {
		s.log.Warn().Err(err).Msg("Hook evaluation on current document failed")
	}

	return s, nil
}

// onEmit receives every message from the injected scripts: navigation
// signals and mutation notifications share the one binding.
func (s *Session) onEmit(msg gson.JSON) (interface{}, error) {
	source := msg.Get("source").Str()

	if source == "mutation" {
		s.dispatchMutation(msg.Get("id").Int())
		return nil, nil
	}

	url := msg.Get("url").Str()
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()

	var sig navwatch.Signal
	switch source {
	case "initial":
		sig = navwatch.SignalInitial
	case "popstate":
		sig = navwatch.SignalPopState
	default:
		sig = navwatch.SignalHistory
	}

	s.log.Debug().Str("signal", string(sig)).Str("nav_url", url).Msg("Navigation signal")
	s.hub.Notify(sig, url)
	return nil, nil
}

func (s *Session) dispatchMutation(id int) {
	s.mu.Lock()
	fn := s.observers[id]
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// CurrentURL returns the last URL reported by a navigation signal.
func (s *Session) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Find returns the first element matching the selector. Empty selector
// means the document root.
func (s *Session) Find(selector string) (navwatch.Element, bool, error) {
	sel := selector
	if sel == "" {
		sel = "html"
	}
	has, el, err := s.page.Has(sel)
	if err != nil {
		return nil, false, fmt.Errorf("browser: query %q: %w", sel, err)
	}
	if !has {
		return nil, false, nil
	}
	return &pageElement{el: el}, true, nil
}

// ObserveMutations injects a MutationObserver on the observe root. A
// missing root is an attach failure; the caller retries.
func (s *Session) ObserveMutations(rootSelector string, fn func()) (func(), error) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.mu.Unlock()

	res, err := s.page.Eval(observeScript, rootSelector, id)
	if err != nil {
		return nil, werrors.NewObserver("", "observer injection failed", err)
	}
	if !res.Value.Bool() {
		return nil, werrors.NewObserver("", fmt.Sprintf("observe root %q not in document", rootSelector), nil)
	}

	s.mu.Lock()
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
		if _, err := s.page.Eval(detachScript, id); err != nil {
			s.log.Debug().Err(err).Int("observer", id).Msg("Observer disconnect failed")
		}
	}, nil
}

// Close disconnects the binding and closes the tab.
func (s *Session) Close() {
	if s.stopExpose != nil {
		if err := s.stopExpose(); err != nil {
			s.log.Debug().Err(err).Msg("Binding stop failed")
		}
		s.stopExpose = nil
	}
	if err := s.page.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Tab close failed")
	}
}

// pageElement adapts a rod element to navwatch.Element
type pageElement struct {
	el *rod.Element
}

func (e *pageElement) Text() (string, error) { return e.el.Text() }
func (e *pageElement) HTML() (string, error) { return e.el.HTML() }
