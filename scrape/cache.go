package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/net/html"

	"github.com/dshills/ria/repository"
)

// PageFetcher downloads a parsed page. *Fetcher implements it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*html.Node, error)
}

// Cache fetches and extracts job ads, remembering the result in a
// repository.ScrapedJobs store.
type Cache struct {
	fetcher  PageFetcher
	registry *Registry
	jobs     repository.ScrapedJobs

	// MaxAge expires cached entries. Zero keeps them while they are active.
	MaxAge time.Duration

	now func() time.Time
}

// NewCache returns a Cache.
func NewCache(fetcher PageFetcher, registry *Registry, jobs repository.ScrapedJobs) *Cache {
	return &Cache{fetcher: fetcher, registry: registry, jobs: jobs, now: time.Now}
}

// Result is the outcome of Cache.Scrape.
type Result struct {
	Data   map[string]any
	Cached bool
}

// Scrape returns the job data for url. An active, fresh cache entry is
// returned without touching the network; otherwise the page is fetched,
// extracted by the scraper registered for url and stored.
func (c *Cache) Scrape(ctx context.Context, url string) (Result, error) {
	scraper, err := c.registry.Resolve(url)
	if err != nil {
		return Result{}, err
	}

	cached, err := c.jobs.GetByURL(ctx, url)
	switch {
	case err == nil && c.fresh(cached):
		return Result{Data: cached.Data, Cached: true}, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return Result{}, fmt.Errorf("failed to read scraped job cache: %w", err)
	}

	doc, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return Result{}, err
	}
	data, err := scraper.Extract(ctx, doc)
	if err != nil {
		return Result{}, err
	}

	stored, err := c.jobs.Upsert(ctx, repository.ScrapedJob{
		URL:       url,
		Data:      data,
		ScrapedAt: c.now().UTC(),
		IsActive:  true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to store scraped job: %w", err)
	}
	return Result{Data: stored.Data}, nil
}

func (c *Cache) fresh(j repository.ScrapedJob) bool {
	if c.MaxAge <= 0 {
		return true
	}
	return c.now().Sub(j.ScrapedAt) < c.MaxAge
}
