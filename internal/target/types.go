// Package target turns page-specific configuration (URL, route,
// selectors) into running navigation-watch sessions. The watcher core
// only ever sees the compiled predicate and the callback; everything in
// this package is data about a particular host page.
package target

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"sjsage522/navwatcher/helpers"
	"sjsage522/navwatcher/internal/navwatch"
)

// Watch modes
const (
	// ModeBrowser drives a live headless-browser tab
	ModeBrowser = "browser"
	// ModeSnapshot polls server-rendered HTML over plain HTTP
	ModeSnapshot = "snapshot"
)

// Route describes which client-side view of the host page matters.
// All non-empty criteria must hold.
type Route struct {
	// PathPrefix matches when the URL path starts with it
	PathPrefix string `yaml:"path_prefix"`

	// PathPattern is a regular expression matched against the URL path
	PathPattern string `yaml:"path_pattern"`

	// Query lists parameters that must be present with these values
	Query map[string]string `yaml:"query"`
}

// Predicate compiles the route into a navwatch.RoutePredicate.
func (r Route) Predicate() (navwatch.RoutePredicate, error) {
	var re *regexp.Regexp
	if r.PathPattern != "" {
		var err error
		re, err = regexp.Compile(r.PathPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", r.PathPattern, err)
		}
	}

	// Copy so later mutation of the Route cannot change a live predicate.
	prefix := r.PathPrefix
	query := make(map[string]string, len(r.Query))
	for k, v := range r.Query {
		query[k] = v
	}

	return func(url string) bool {
		path := helpers.PathOf(url)
		if prefix != "" && !strings.HasPrefix(path, prefix) {
			return false
		}
		if re != nil && !re.MatchString(path) {
			return false
		}
		if len(query) > 0 {
			q := helpers.QueryOf(url)
			for k, v := range query {
				if q.Get(k) != v {
					return false
				}
			}
		}
		return true
	}, nil
}

// Target describes one page to watch.
type Target struct {
	ID       string `yaml:"id"`
	Provider string `yaml:"provider"`
	URL      string `yaml:"url"`
	Mode     string `yaml:"mode"`
	Route    Route  `yaml:"route"`

	// ReadySelector identifies the element whose appearance signals
	// "safe to act" on this route
	ReadySelector string `yaml:"ready_selector"`

	// ObserveRoot is where the mutation observer attaches; empty means
	// the document root
	ObserveRoot string `yaml:"observe_root"`

	PollIntervalMs    int  `yaml:"poll_interval_ms"`
	MaxPollAttempts   int  `yaml:"max_poll_attempts"`
	DisableRevalidate bool `yaml:"disable_revalidate"`
}

// Validate checks the target for values a session cannot run with.
func (t *Target) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("target id must not be empty")
	}
	if t.URL == "" {
		return fmt.Errorf("target %s: url must not be empty", t.ID)
	}
	if t.Mode != ModeBrowser && t.Mode != ModeSnapshot {
		return fmt.Errorf("target %s: unknown mode %q", t.ID, t.Mode)
	}
	if _, err := t.Route.Predicate(); err != nil {
		return fmt.Errorf("target %s: %w", t.ID, err)
	}
	return nil
}

// Options builds the watcher options for this target.
func (t *Target) Options() navwatch.Options {
	return navwatch.Options{
		PollInterval:      time.Duration(t.PollIntervalMs) * time.Millisecond,
		MaxPollAttempts:   t.MaxPollAttempts,
		ReadySelector:     t.ReadySelector,
		ObserveRoot:       t.ObserveRoot,
		DisableRevalidate: t.DisableRevalidate,
	}
}

// ReadyEvent is emitted once per readiness firing.
type ReadyEvent struct {
	TargetID string    `json:"target_id"`
	Provider string    `json:"provider"`
	URL      string    `json:"url"`
	Selector string    `json:"selector"`
	Text     string    `json:"text,omitempty"`
	FiredAt  time.Time `json:"fired_at"`
}
