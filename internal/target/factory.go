package target

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sjsage522/navwatcher/config"
)

// CreateTargets returns the configured watch targets: from the targets
// file when one is set, otherwise the built-in set. Config-level
// defaults fill any per-target cadence left unset.
func CreateTargets(cfg config.Config) ([]Target, error) {
	var targets []Target
	if cfg.TargetsFile != "" {
		loaded, err := LoadFile(cfg.TargetsFile)
		if err != nil {
			return nil, err
		}
		targets = loaded
	} else {
		targets = builtinTargets()
	}

	for i := range targets {
		applyDefaults(&targets[i], cfg)
		if err := targets[i].Validate(); err != nil {
			return nil, err
		}
	}
	return targets, nil
}

// LoadFile reads a YAML targets file.
func LoadFile(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	var file struct {
		Targets []Target `yaml:"targets"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse targets file %s: %w", path, err)
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("targets file %s defines no targets", path)
	}
	return file.Targets, nil
}

func applyDefaults(t *Target, cfg config.Config) {
	if t.Mode == "" {
		t.Mode = ModeBrowser
	}
	if t.Provider == "" {
		t.Provider = t.ID
	}
	if t.PollIntervalMs <= 0 {
		t.PollIntervalMs = int(cfg.PollInterval.Milliseconds())
	}
	if t.MaxPollAttempts <= 0 {
		t.MaxPollAttempts = cfg.MaxPollAttempts
	}
}

// builtinTargets covers the booking funnel of the default host widget.
// Selectors and routes here are the page-specific glue; swap them via a
// targets file without touching the watcher.
func builtinTargets() []Target {
	return []Target{
		{
			ID:            "booking-search",
			Provider:      "AuroraBooking",
			URL:           "https://booking.aurora-hotels.example/search",
			Mode:          ModeBrowser,
			Route:         Route{PathPrefix: "/search"},
			ReadySelector: ".results-list .room-card",
			ObserveRoot:   "#booking-app",
		},
		{
			ID:            "booking-room-select",
			Provider:      "AuroraBooking",
			URL:           "https://booking.aurora-hotels.example/search",
			Mode:          ModeBrowser,
			Route:         Route{PathPattern: `^/rooms/\d+$`},
			ReadySelector: ".rate-table .total",
			ObserveRoot:   "#booking-app",
		},
		{
			ID:            "booking-checkout",
			Provider:      "AuroraBooking",
			URL:           "https://booking.aurora-hotels.example/search",
			Mode:          ModeBrowser,
			Route:         Route{PathPrefix: "/checkout"},
			ReadySelector: ".summary .total-price",
			ObserveRoot:   "#booking-app",
		},
		{
			ID:            "booking-confirmation",
			Provider:      "AuroraBooking",
			URL:           "https://booking.aurora-hotels.example/search",
			Mode:          ModeBrowser,
			Route:         Route{PathPrefix: "/confirmation", Query: map[string]string{"status": "ok"}},
			ReadySelector: ".confirmation-number",
			ObserveRoot:   "#booking-app",
			// The confirmation view renders once; a re-render must not
			// produce a second event.
			DisableRevalidate: true,
		},
		{
			ID:            "rates-landing",
			Provider:      "AuroraBooking",
			URL:           "https://www.aurora-hotels.example/rates",
			Mode:          ModeSnapshot,
			Route:         Route{PathPrefix: "/rates"},
			ReadySelector: "table.rates tbody tr",
		},
	}
}
