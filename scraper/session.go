package scraper

import "ue_scraper/browser"

// SessionFactory builds a fresh, uninitialized browser session for one run.
type SessionFactory func(cfg browser.Config) browser.Controller

// PlaywrightSessions is the production factory.
func PlaywrightSessions(cfg browser.Config) browser.Controller {
	return browser.NewSession(cfg)
}
