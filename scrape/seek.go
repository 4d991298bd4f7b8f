package scrape

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SeekScraper reads seek.com.au job ads, which tag their fields with
// data-automation attributes.
type SeekScraper struct{}

// Extract implements Scraper. The title is required; company and location
// are empty when missing. details holds the text of every job details block.
func (SeekScraper) Extract(_ context.Context, doc *html.Node) (map[string]any, error) {
	title := findFirst(doc, byAttr(atom.H1, "data-automation", "job-detail-title"))
	if title == nil {
		return nil, fmt.Errorf("seek: %w: job-detail-title", ErrElementNotFound)
	}

	details := []string{}
	for _, n := range findAll(doc, byAttr(atom.Div, "data-automation", "jobAdDetails")) {
		if text := strings.TrimSpace(textContent(n)); text != "" {
			details = append(details, text)
		}
	}

	return map[string]any{
		FieldTitle:    innerText(title),
		FieldCompany:  seekField(doc, "advertiser-name"),
		FieldLocation: seekField(doc, "job-detail-location"),
		FieldDetails:  details,
	}, nil
}

func seekField(doc *html.Node, name string) string {
	if n := findFirst(doc, byAttr(atom.Span, "data-automation", name)); n != nil {
		return innerText(n)
	}
	return ""
}
