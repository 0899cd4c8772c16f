// Package browser manages the Chrome connection and wraps rod pages as
// navwatch pages: readiness queries, mutation observation via an
// injected MutationObserver, and navigation signals from wrapped history
// primitives.
package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"sjsage522/navwatcher/logger"
)

// Manager owns the browser shared by all sessions. Connect to a remote
// Chrome via its WebSocket URL, or launch a local one when the URL is
// empty.
type Manager struct {
	remoteURL string
	headless  bool
	log       *logger.Logger

	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewManager creates a Manager. Call Start before opening sessions.
func NewManager(remoteURL string, headless bool) *Manager {
	return &Manager{
		remoteURL: remoteURL,
		headless:  headless,
		log:       logger.ForBrowser(),
	}
}

// Start connects to (or launches) Chrome.
func (m *Manager) Start(ctx context.Context) error {
	wsURL := m.remoteURL
	if wsURL == "" {
		l := launcher.New().Headless(m.headless)
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch chrome: %w", err)
		}
		m.launcher = l
		wsURL = u
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect %s: %w", wsURL, err)
	}
	m.browser = b

	m.log.Info().
		Str("control_url", wsURL).
		Bool("headless", m.headless).
		Msg("Browser connected")
	return nil
}

// Browser returns the underlying rod browser, or nil before Start.
func (m *Manager) Browser() *rod.Browser {
	return m.browser
}

// Close shuts the browser down and kills a locally launched Chrome.
func (m *Manager) Close() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.log.Warn().Err(err).Msg("Browser close failed")
		}
		m.browser = nil
	}
	if m.launcher != nil {
		m.launcher.Cleanup()
		m.launcher = nil
	}
}
