// Package visualize renders stored articles as a standalone HTML page.
package visualize

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/dustin/go-humanize"

	"mlsub/internal/article"
)

const DefaultTitle = "ML/DL Articles"

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",sans-serif;max-width:860px;margin:2rem auto;padding:0 1rem;color:#222}
article{border-bottom:1px solid #ddd;padding:1rem 0}
.meta{color:#666;font-size:.9rem}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">{{len .Items}} articles, generated {{.Generated}}</p>
{{range .Items}}<article>
<h2>{{if .Link}}<a href="{{.Link}}">{{.Title}}</a>{{else}}{{.Title}}{{end}}</h2>
<p><strong>Authors:</strong> {{.Authors}}</p>
{{if .Published}}<p class="meta">Published {{.Published}}{{if .Ago}} ({{.Ago}}){{end}}{{if .Score}} · {{.Score}} points{{end}}</p>{{end}}
{{if .Summary}}<p>{{.Summary}}</p>{{end}}
{{if .PDFLink}}<p><a href="{{.PDFLink}}">Read More</a></p>{{end}}
</article>
{{end}}</body>
</html>
`

var page = template.Must(template.New("page").Parse(pageTemplate))

type pageData struct {
	Title     string
	Generated string
	Items     []item
}

type item struct {
	Title     string
	Link      string
	Authors   string
	Summary   string
	PDFLink   string
	Published string
	Ago       string
	Score     string
}

// Render writes the page for articles to w. now anchors the relative
// published times.
func Render(w io.Writer, articles []article.Article, now time.Time) error {
	data := pageData{
		Title:     DefaultTitle,
		Generated: now.UTC().Format("2006-01-02 15:04 MST"),
		Items:     make([]item, 0, len(articles)),
	}
	for _, a := range articles {
		it := item{
			Title:     a.Title,
			Link:      a.Link,
			Authors:   a.AuthorsText(),
			PDFLink:   a.PDFLink,
			Published: strings.TrimSpace(a.PublishedDate),
		}
		if !a.HasFillerSummary() {
			it.Summary = a.Summary
		}
		if t, err := dateparse.ParseIn(it.Published, time.UTC); it.Published != "" && err == nil {
			it.Ago = humanize.RelTime(t, now, "ago", "from now")
		}
		if n, ok := score(a.Metadata); ok {
			it.Score = humanize.Comma(n)
		}
		data.Items = append(data.Items, it)
	}
	if err := page.Execute(w, data); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}

// WriteFile renders the page and replaces path atomically.
func WriteFile(path string, articles []article.Article, now time.Time) error {
	var buf bytes.Buffer
	if err := Render(&buf, articles, now); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace page: %w", err)
	}
	return nil
}

// score reads hn_score, which is an int after a fetch and a float64 after a
// JSON round trip.
func score(md map[string]any) (int64, bool) {
	switch v := md["hn_score"].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}
