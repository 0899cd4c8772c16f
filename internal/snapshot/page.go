// Package snapshot implements navwatch.Page over periodically
// re-fetched HTML. Targets that render server-side need no browser: a
// content-hash change between fetches plays the role of a DOM mutation,
// and the first successful fetch plays the role of the initial-load
// navigation signal.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"

	"sjsage522/navwatcher/helpers"
	"sjsage522/navwatcher/internal/navwatch"
	"sjsage522/navwatcher/logger"
	werrors "sjsage522/navwatcher/pkg/errors"
)

// Page fetches a URL on an interval and exposes the parsed document.
type Page struct {
	url      string
	hub      *navwatch.Hub
	interval time.Duration
	clk      clock.Clock
	log      *logger.Logger

	mu        sync.Mutex
	doc       *goquery.Document
	hash      uint64
	loaded    bool
	observers map[int]func()
	nextObs   int
}

// Ensure Page implements navwatch.Page
var _ navwatch.Page = (*Page)(nil)

// NewPage creates a snapshot page. Call Run to start fetching.
func NewPage(url string, hub *navwatch.Hub, interval time.Duration, clk clock.Clock) *Page {
	if interval <= 0 {
		interval = time.Minute
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Page{
		url:       url,
		hub:       hub,
		interval:  interval,
		clk:       clk,
		log:       logger.ForSnapshot(url),
		observers: make(map[int]func()),
	}
}

// Run blocks until ctx is done, re-fetching the page at the configured
// interval. The first successful fetch emits the initial navigation
// signal; every content change afterwards wakes the observers.
func (p *Page) Run(ctx context.Context) {
	p.Refresh()

	ticker := p.clk.Ticker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh()
		}
	}
}

// Refresh fetches the page once. Fetch and parse failures are logged and
// leave the previous document in place.
func (p *Page) Refresh() {
	body, err := helpers.FetchWithRandomHeaders(p.url)
	if err != nil {
		p.log.Warn().Err(werrors.NewNetwork("", "snapshot fetch failed", err)).Msg("Snapshot fetch failed")
		return
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		p.log.Warn().Err(err).Msg("Snapshot read failed")
		return
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		p.log.Warn().Err(err).Msg("Snapshot parse failed")
		return
	}

	sum := xxhash.Sum64(raw)

	p.mu.Lock()
	first := !p.loaded
	changed := p.loaded && sum != p.hash
	p.doc = doc
	p.hash = sum
	p.loaded = true
	var fns []func()
	if changed {
		fns = make([]func(), 0, len(p.observers))
		for _, fn := range p.observers {
			fns = append(fns, fn)
		}
	}
	p.mu.Unlock()

	if first {
		p.hub.Notify(navwatch.SignalInitial, p.url)
	}
	for _, fn := range fns {
		fn()
	}
}

// CurrentURL returns the snapshot URL; a snapshot target has no
// client-side routing.
func (p *Page) CurrentURL() string {
	return p.url
}

// Find returns the first element matching the selector in the latest
// snapshot. Empty selector means the document root.
func (p *Page) Find(selector string) (navwatch.Element, bool, error) {
	p.mu.Lock()
	doc := p.doc
	p.mu.Unlock()

	if doc == nil {
		return nil, false, fmt.Errorf("snapshot: document not fetched yet")
	}

	sel := selector
	if sel == "" {
		sel = "html"
	}
	found := doc.Find(sel).First()
	if found.Length() == 0 {
		return nil, false, nil
	}
	return snapshotElement{sel: found}, true, nil
}

// ObserveMutations registers fn to run whenever a re-fetch changes the
// page content. The observe root must exist in the current snapshot,
// mirroring the browser attach semantics.
func (p *Page) ObserveMutations(rootSelector string, fn func()) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.doc == nil {
		return nil, werrors.NewObserver("", "document not fetched yet", nil)
	}
	if rootSelector != "" && p.doc.Find(rootSelector).Length() == 0 {
		return nil, werrors.NewObserver("", fmt.Sprintf("observe root %q not in document", rootSelector), nil)
	}

	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn

	return func() {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
	}, nil
}

// snapshotElement adapts a goquery selection to navwatch.Element
type snapshotElement struct {
	sel *goquery.Selection
}

func (e snapshotElement) Text() (string, error) {
	return e.sel.Text(), nil
}

func (e snapshotElement) HTML() (string, error) {
	return goquery.OuterHtml(e.sel)
}
