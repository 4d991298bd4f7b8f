package scrape

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// LinkedInScraper reads public linkedin.com job postings. It prefers the
// top card markup and falls back to the Open Graph tags, which LinkedIn
// serves even to logged-out clients.
type LinkedInScraper struct{}

// Extract implements Scraper.
func (LinkedInScraper) Extract(_ context.Context, doc *html.Node) (map[string]any, error) {
	title := firstText(doc,
		byClass(atom.H1, "top-card-layout__title"),
		byClass(atom.H1, "topcard__title"),
	)
	if title == "" {
		title = metaContent(doc, "og:title")
	}
	if title == "" {
		return nil, fmt.Errorf("linkedin: %w: job title", ErrElementNotFound)
	}

	company := firstText(doc,
		byClass(atom.A, "topcard__org-name-link"),
		byClass(0, "topcard__flavor"),
	)
	location := firstText(doc, byClass(atom.Span, "topcard__flavor--bullet"))

	details := []string{}
	if n := findFirst(doc, byClass(0, "show-more-less-html__markup")); n != nil {
		if text := strings.TrimSpace(textContent(n)); text != "" {
			details = append(details, text)
		}
	}
	if len(details) == 0 {
		if desc := metaContent(doc, "og:description"); desc != "" {
			details = append(details, desc)
		}
	}

	return map[string]any{
		FieldTitle:    title,
		FieldCompany:  company,
		FieldLocation: location,
		FieldDetails:  details,
	}, nil
}

// firstText returns the inner text of the first matcher that finds a
// non-empty element.
func firstText(doc *html.Node, matchers ...matcher) string {
	for _, m := range matchers {
		if n := findFirst(doc, m); n != nil {
			if text := innerText(n); text != "" {
				return text
			}
		}
	}
	return ""
}
