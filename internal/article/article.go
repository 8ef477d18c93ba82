// Package article defines the Article value shared by sources, storage and
// the notifier, plus the small contracts around it.
package article

import (
	"context"
	"strings"
)

// Source tags stored under Metadata["source"].
const (
	SourceArxiv   = "arxiv"
	SourceHN      = "hn"
	SourceUnknown = "unknown"
)

// HNDefaultSummary is the placeholder summary given to Hacker News stories
// that carry no text body.
const HNDefaultSummary = "Hacker News story"

// Article is a research paper or news item. Title and Link are always set by
// the sources; Authors may be empty.
type Article struct {
	Title         string         `json:"title"`
	Authors       []string       `json:"authors"`
	Summary       string         `json:"summary"`
	Link          string         `json:"link"`
	PublishedDate string         `json:"published_date"`
	PDFLink       string         `json:"pdf_link"`
	Metadata      map[string]any `json:"metadata"`
}

// Source returns the metadata source tag, or SourceUnknown.
func (a Article) Source() string {
	if a.Metadata == nil {
		return SourceUnknown
	}
	s, ok := a.Metadata["source"].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return SourceUnknown
	}
	return s
}

// HasFillerSummary reports whether the summary is the HN placeholder rather
// than real text.
func (a Article) HasFillerSummary() bool {
	return a.Source() == SourceHN && strings.TrimSpace(a.Summary) == HNDefaultSummary
}

// AuthorsText joins authors for display, "Unknown" when there are none.
func (a Article) AuthorsText() string {
	if len(a.Authors) == 0 {
		return "Unknown"
	}
	return strings.Join(a.Authors, ", ")
}

// Query parameterizes a fetch.
type Query struct {
	Search     string
	MaxResults int
	// Days keeps only articles published within the last N days. Nil disables
	// the filter. Sources without dates ignore it.
	Days *int
}

// Fetcher retrieves a finite list of articles.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]Article, error)
}

// Limit caps the number of articles to notify.
//
// A nil limit means unlimited; 0 means no articles; a negative limit is
// treated as 0.
func Limit(articles []Article, limit *int) []Article {
	if limit == nil {
		return articles
	}
	n := *limit
	if n <= 0 {
		return nil
	}
	if n >= len(articles) {
		return articles
	}
	return articles[:n]
}
