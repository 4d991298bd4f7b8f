// Package scrape turns job advertisement pages into structured job data.
//
// A Registry maps a job board to the Scraper that understands its markup.
// Fetcher downloads and parses pages; Cache keeps extracted data in the
// scraped_jobs table so an ad is fetched once while it stays active.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// Job data keys shared by the scrapers.
const (
	FieldTitle    = "title"
	FieldCompany  = "company"
	FieldLocation = "location"
	FieldDetails  = "details"
)

// ErrNoScraper is returned by Resolve when no scraper matches a URL.
var ErrNoScraper = errors.New("no registered scraper for domain")

// ErrElementNotFound is returned when a required element is missing from a page.
var ErrElementNotFound = errors.New("element not found")

// Scraper extracts job data from a parsed page.
type Scraper interface {
	Extract(ctx context.Context, doc *html.Node) (map[string]any, error)
}

// ScraperFunc adapts a function to Scraper.
type ScraperFunc func(ctx context.Context, doc *html.Node) (map[string]any, error)

// Extract implements Scraper.
func (f ScraperFunc) Extract(ctx context.Context, doc *html.Node) (map[string]any, error) {
	return f(ctx, doc)
}

type registration struct {
	domain  string
	scraper Scraper
}

// Registry resolves scrapers by domain. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry returns a registry with the Seek and LinkedIn scrapers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("seek.com", SeekScraper{})
	r.Register("linkedin.com", LinkedInScraper{})
	return r
}

// Register maps every URL containing domain to s. Registering a domain again
// replaces its scraper but keeps its position.
func (r *Registry) Register(domain string, s Scraper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].domain == domain {
			r.entries[i].scraper = s
			return
		}
	}
	r.entries = append(r.entries, registration{domain: domain, scraper: s})
}

// Resolve returns the scraper of the first registered domain that is a
// substring of url.
func (r *Registry) Resolve(url string) (Scraper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if strings.Contains(url, e.domain) {
			return e.scraper, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoScraper, url)
}

// Domains lists the registered domains in registration order.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.domain
	}
	return out
}
