package navwatch

import (
	"errors"
	"sync"
)

// fakeElement implements Element for tests
type fakeElement struct {
	text string
	html string
}

func (e fakeElement) Text() (string, error) { return e.text, nil }
func (e fakeElement) HTML() (string, error) { return e.html, nil }

// fakePage implements Page with externally controlled state, standing in
// for the host page's asynchronous rendering
type fakePage struct {
	mu              sync.Mutex
	url             string
	present         map[string]bool
	findErr         error
	observeFailures int
	observers       map[int]func()
	nextObs         int
}

// Ensure fakePage implements Page
var _ Page = (*fakePage)(nil)

func newFakePage(url string) *fakePage {
	return &fakePage{
		url:       url,
		present:   make(map[string]bool),
		observers: make(map[int]func()),
	}
}

func (p *fakePage) CurrentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// SetPresent controls whether a selector currently matches
func (p *fakePage) SetPresent(selector string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.present[selector] = ok
}

func (p *fakePage) Find(selector string) (Element, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.findErr != nil {
		return nil, false, p.findErr
	}
	// Empty selector means the document root, which always exists
	if selector == "" {
		return fakeElement{text: "root"}, true, nil
	}
	if p.present[selector] {
		return fakeElement{text: "found:" + selector}, true, nil
	}
	return nil, false, nil
}

// FailNextObserves makes the next n ObserveMutations calls fail, as if
// the observe root were not in the document yet
func (p *fakePage) FailNextObserves(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observeFailures = n
}

func (p *fakePage) ObserveMutations(rootSelector string, fn func()) (func(), error) {
	p.mu.Lock()
	if p.observeFailures > 0 {
		p.observeFailures--
		p.mu.Unlock()
		return nil, errors.New("observe root not in document")
	}
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
	}, nil
}

// Mutate simulates a host-page DOM mutation notification
func (p *fakePage) Mutate() {
	p.mu.Lock()
	fns := make([]func(), 0, len(p.observers))
	for _, fn := range p.observers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// ObserverCount returns the number of attached observers
func (p *fakePage) ObserverCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.observers)
}
