// Package arxiv fetches recent papers from the arXiv export API.
package arxiv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed/atom"

	"mlsub/internal/article"
	"mlsub/pkg/logx"
)

const (
	DefaultBaseURL = "http://export.arxiv.org/api/query"
	DefaultTimeout = 30 * time.Second
)

const maxErrorBody = 512

type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
	log     logx.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimSpace(u); u != "" {
			c.baseURL = u
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithClock overrides the clock used by the Days filter.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(l logx.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		now:     time.Now,
		log:     logx.Nop(),
	}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	c.log = c.log.With(logx.String("comp", "source"), logx.String("source", article.SourceArxiv))
	return c
}

func (c *Client) Name() string { return article.SourceArxiv }

// Fetch queries the API newest-first. Entries without a title or id are
// dropped. With q.Days set, entries published before now-Days or carrying no
// usable date are dropped too.
func (c *Client) Fetch(ctx context.Context, q article.Query) ([]article.Article, error) {
	u, err := c.queryURL(q)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("arxiv: build request: %w", err)
	}
	req.Header.Set("Accept", "application/atom+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("arxiv: http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	feed, err := (&atom.Parser{}).Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("arxiv: parse feed: %w", err)
	}

	out := Articles(feed)
	total := len(out)
	if q.Days != nil {
		out = FilterSince(out, c.now().Add(-time.Duration(*q.Days)*24*time.Hour))
	}
	c.log.Debug("feed parsed",
		logx.Int("entries", len(feed.Entries)),
		logx.Int("articles", total),
		logx.Int("kept", len(out)),
	)
	return out, nil
}

func (c *Client) queryURL(q article.Query) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("arxiv: base url: %w", err)
	}
	v := base.Query()
	v.Set("search_query", q.Search)
	v.Set("start", "0")
	v.Set("max_results", strconv.Itoa(q.MaxResults))
	v.Set("sortBy", "submittedDate")
	v.Set("sortOrder", "descending")
	base.RawQuery = v.Encode()
	return base.String(), nil
}

// Articles maps feed entries in order, skipping entries without a title or id.
func Articles(feed *atom.Feed) []article.Article {
	if feed == nil {
		return nil
	}
	out := make([]article.Article, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		if e == nil {
			continue
		}
		title := collapse(e.Title)
		id := strings.TrimSpace(e.ID)
		if title == "" || id == "" {
			continue
		}
		out = append(out, article.Article{
			Title:         title,
			Authors:       authors(e),
			Summary:       collapse(e.Summary),
			Link:          id,
			PublishedDate: strings.TrimSpace(e.Published),
			PDFLink:       pdfLink(e),
			Metadata:      map[string]any{"source": article.SourceArxiv},
		})
	}
	return out
}

// FilterSince keeps articles published at or after cutoff.
func FilterSince(in []article.Article, cutoff time.Time) []article.Article {
	out := make([]article.Article, 0, len(in))
	for _, a := range in {
		pub, ok := published(a.PublishedDate)
		if !ok || pub.Before(cutoff) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func published(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func authors(e *atom.Entry) []string {
	out := make([]string, 0, len(e.Authors))
	for _, p := range e.Authors {
		if p == nil {
			continue
		}
		if n := strings.TrimSpace(p.Name); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func pdfLink(e *atom.Entry) string {
	for _, l := range e.Links {
		if l != nil && l.Title == "pdf" {
			return l.Href
		}
	}
	return ""
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }
