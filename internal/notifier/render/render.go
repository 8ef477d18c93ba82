// Package render turns a list of articles into channel-specific message
// bodies.
//
// Rendering happens in two steps. Prepare resolves everything that does not
// depend on the wire format (heading source, translations, summary
// truncation, style filtering) exactly once per dispatch. The dialect
// renderers (HTML, MarkdownV2, Plain, BuildPost) are then pure functions of
// the resulting Digest.
package render

import (
	"context"
	"fmt"
	"strings"

	"mlsub/internal/article"
	"mlsub/internal/translate"
	"mlsub/pkg/markup"
)

// Style selects verbosity.
type Style string

const (
	StyleDetailed Style = "detailed"
	StyleCompact  Style = "compact"
)

// Format selects the markup dialect for a channel.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// SummaryMaxRunes caps summary length before the ellipsis.
const SummaryMaxRunes = 300

// Titles and author lists are bounded so that one entry always fits in a
// single Telegram message and chunking can cut between lines.
const (
	TitleMaxRunes   = 300
	AuthorsMaxRunes = 500
)

// ParseStyle parses a style name. Empty means detailed.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case "", StyleDetailed:
		return StyleDetailed, nil
	case StyleCompact:
		return StyleCompact, nil
	}
	return "", fmt.Errorf("invalid notify style %q (use detailed or compact)", s)
}

// ParseFormat parses a format name. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatMarkdown:
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("invalid notify format %q (use text or markdown)", s)
}

// Config is the per-dispatch rendering configuration.
type Config struct {
	Style      Style
	Format     Format
	Translator translate.Translator
}

// Entry is one article reduced to the fields a message shows. Optional
// fields are empty when the block must not be emitted.
type Entry struct {
	Title             string
	TitleTranslated   string
	Link              string
	Authors           string
	Summary           string
	SummaryTranslated string
}

// Digest is the format-independent content of one notification.
type Digest struct {
	Source  string
	Style   Style
	Entries []Entry
}

// Empty reports whether the digest renders as the reminder.
func (d Digest) Empty() bool { return len(d.Entries) == 0 }

func (d Digest) detailed() bool { return d.Style != StyleCompact }

// Prepare builds the Digest for articles. Titles are always offered to the
// translator; summaries only in detailed style. Translations equal to their
// source are dropped.
func Prepare(ctx context.Context, articles []article.Article, cfg Config) Digest {
	tr := cfg.Translator
	if tr == nil {
		tr = translate.Nop{}
	}
	style := cfg.Style
	if style == "" {
		style = StyleDetailed
	}

	d := Digest{Source: SourceOf(articles), Style: style}
	if len(articles) == 0 {
		return d
	}
	d.Entries = make([]Entry, 0, len(articles))
	for _, a := range articles {
		title := markup.TruncWords(a.Title, TitleMaxRunes)
		e := Entry{Title: title, Link: a.Link}
		if t := tr.Translate(ctx, title); translate.Changed(title, t) {
			e.TitleTranslated = markup.TruncWords(strings.TrimSpace(t), TitleMaxRunes)
		}
		if d.detailed() {
			e.Authors = markup.TruncWords(a.AuthorsText(), AuthorsMaxRunes)
			if s := summaryOf(a); s != "" {
				e.Summary = s
				if t := tr.Translate(ctx, s); translate.Changed(s, t) {
					e.SummaryTranslated = markup.TruncWords(strings.TrimSpace(t), SummaryMaxRunes)
				}
			}
		}
		d.Entries = append(d.Entries, e)
	}
	return d
}

// SourceOf derives the heading source from the first article.
func SourceOf(articles []article.Article) string {
	if len(articles) == 0 {
		return article.SourceUnknown
	}
	return articles[0].Source()
}

func summaryOf(a article.Article) string {
	if a.HasFillerSummary() {
		return ""
	}
	s := strings.Join(strings.Fields(a.Summary), " ")
	if s == "" {
		return ""
	}
	return markup.TruncWords(s, SummaryMaxRunes)
}
