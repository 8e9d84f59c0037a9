// Package crawler fetches rendered HTML for URLs. Target sites are
// client-rendered, so plain HTTP fetches return empty shells; the primary
// implementation drives a headless browser.
package crawler

import "context"

// Page is the rendered snapshot of one URL.
type Page struct {
	URL  string
	HTML string
}

// Crawler renders a URL and returns its HTML. Implementations may hold a
// long-lived browser process; callers must Close at the end of a run.
type Crawler interface {
	Fetch(ctx context.Context, url string) (Page, error)
	Close() error
}
