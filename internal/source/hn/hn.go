// Package hn fetches top stories from the Hacker News Firebase API.
package hn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"mlsub/internal/article"
	"mlsub/pkg/logx"
)

const (
	DefaultBaseURL     = "https://hacker-news.firebaseio.com"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxAge      = 7 * 24 * time.Hour
	DefaultConcurrency = 8
	DefaultRatePerSec  = 10

	itemPageURL   = "https://news.ycombinator.com/item?id="
	untitled      = "(no title)"
	unknownAuthor = "Unknown"
	maxErrorBody  = 512
)

// item is the subset of the Firebase item we map.
type item struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	URL         string `json:"url"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Deleted     bool   `json:"deleted"`
	Dead        bool   `json:"dead"`
}

type Client struct {
	baseURL     string
	http        *http.Client
	concurrency int
	limiter     *rate.Limiter
	maxAge      time.Duration
	now         func() time.Time
	log         logx.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
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

// WithConcurrency bounds in-flight item requests. Values below 1 keep the
// default.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithRate caps item requests per second. Zero or less disables the cap.
func WithRate(perSec float64) Option {
	return func(c *Client) {
		if perSec <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(perSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// WithMaxAge drops stories older than d. Zero disables the filter.
func WithMaxAge(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.maxAge = d
		}
	}
}

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
		baseURL:     DefaultBaseURL,
		http:        &http.Client{Timeout: DefaultTimeout},
		concurrency: DefaultConcurrency,
		limiter:     rate.NewLimiter(rate.Limit(DefaultRatePerSec), DefaultRatePerSec),
		maxAge:      DefaultMaxAge,
		now:         time.Now,
		log:         logx.Nop(),
	}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	c.log = c.log.With(logx.String("comp", "source"), logx.String("source", article.SourceHN))
	return c
}

func (c *Client) Name() string { return article.SourceHN }

// Fetch returns up to q.MaxResults top stories in ranking order. Twice that
// many ids are considered so that non-stories, failed items and stale
// stories can be skipped. q.Search and q.Days are ignored.
func (c *Client) Fetch(ctx context.Context, q article.Query) ([]article.Article, error) {
	if q.MaxResults <= 0 {
		return []article.Article{}, nil
	}
	ids, err := c.topStories(ctx)
	if err != nil {
		return nil, err
	}
	if n := q.MaxResults * 2; len(ids) > n {
		ids = ids[:n]
	}

	items := make([]*item, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := c.limiter.Wait(gctx); err != nil {
				return err
			}
			it, err := c.item(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.log.Debug("item skipped", logx.Int64("id", id), logx.Err(err))
				return nil
			}
			items[i] = it
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("hn: fetch items: %w", err)
	}

	now := c.now()
	out := make([]article.Article, 0, q.MaxResults)
	for i, it := range items {
		if len(out) >= q.MaxResults {
			break
		}
		if it == nil || it.Type != "story" || it.Deleted || it.Dead {
			continue
		}
		if c.maxAge > 0 && it.Time > 0 && now.Sub(time.Unix(it.Time, 0)) > c.maxAge {
			continue
		}
		out = append(out, toArticle(ids[i], it))
	}
	c.log.Debug("top stories mapped", logx.Int("candidates", len(ids)), logx.Int("kept", len(out)))
	return out, nil
}

func (c *Client) topStories(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := c.getJSON(ctx, c.baseURL+"/v0/topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("hn: top stories: %w", err)
	}
	return ids, nil
}

func (c *Client) item(ctx context.Context, id int64) (*item, error) {
	var it *item
	u := c.baseURL + "/v0/item/" + strconv.FormatInt(id, 10) + ".json"
	if err := c.getJSON(ctx, u, &it); err != nil {
		return nil, err
	}
	if it == nil {
		return nil, fmt.Errorf("item %d not found", id)
	}
	return it, nil
}

func (c *Client) getJSON(ctx context.Context, u string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func toArticle(id int64, it *item) article.Article {
	title := strings.TrimSpace(it.Title)
	if title == "" {
		title = untitled
	}
	summary := plainText(it.Text)
	if summary == "" {
		summary = article.HNDefaultSummary
	}
	link := strings.TrimSpace(it.URL)
	if link == "" {
		link = itemPageURL + strconv.FormatInt(id, 10)
	}
	author := strings.TrimSpace(it.By)
	if author == "" {
		author = unknownAuthor
	}
	var published string
	if it.Time > 0 {
		published = time.Unix(it.Time, 0).UTC().Format("2006-01-02T15:04:05Z")
	}
	return article.Article{
		Title:         title,
		Authors:       []string{author},
		Summary:       summary,
		Link:          link,
		PublishedDate: published,
		Metadata: map[string]any{
			"source":         article.SourceHN,
			"hn_id":          id,
			"hn_score":       it.Score,
			"hn_descendants": it.Descendants,
			"hn_timestamp":   it.Time,
			"hn_url":         link,
		},
	}
}

// Item text is HTML with bare <p> separators between paragraphs.
var blockBreaks = strings.NewReplacer("<p>", " <p>", "<br>", " <br>", "<br/>", " <br/>")

// plainText strips markup and entities and collapses whitespace.
func plainText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(blockBreaks.Replace(s)))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
