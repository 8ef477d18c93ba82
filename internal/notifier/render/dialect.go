package render

import (
	"strings"

	"mlsub/internal/article"
	"mlsub/pkg/markup"
)

type heading struct {
	lead, text, trail string
}

var headings = map[string]heading{
	article.SourceArxiv: {lead: "✨ ", text: "New ML/DL Papers Found!", trail: " ✨"},
	article.SourceHN:    {lead: "🚀 ", text: "Hacker News 热门讨论"},
}

var genericHeading = heading{lead: "📢 ", text: "New Articles"}

func headingFor(source string) heading {
	if h, ok := headings[source]; ok {
		return h
	}
	return genericHeading
}

// Reminder wording, shared by every dialect.
const (
	ReminderTitle  = "📭 No new articles today"
	reminderDetail = "Nothing new turned up in this run. You will hear from us as soon as fresh content arrives."
)

const (
	iconTitle       = "📄 "
	iconTranslation = "🌐 "
	iconAuthors     = "👤 "
	iconSummary     = "📝 "
	iconLink        = "🔗 "
)

// dialect renders the line-level pieces of a text message.
type dialect interface {
	heading(h heading) string
	title(e Entry) string
	translation(text string) string
	authors(text string) string
	summary(text string) string
	reminder(detailed bool) string
}

// renderText lays out a digest line by line using dl.
func renderText(d Digest, dl dialect) string {
	if d.Empty() {
		return dl.reminder(d.detailed())
	}
	var b strings.Builder
	b.WriteString(dl.heading(headingFor(d.Source)))
	b.WriteString("\n\n")
	for _, e := range d.Entries {
		b.WriteString(dl.title(e))
		b.WriteByte('\n')
		if e.TitleTranslated != "" {
			b.WriteString(dl.translation(e.TitleTranslated))
			b.WriteByte('\n')
		}
		if e.Authors != "" {
			b.WriteString(dl.authors(e.Authors))
			b.WriteByte('\n')
		}
		if e.Summary != "" {
			b.WriteString(dl.summary(e.Summary))
			b.WriteByte('\n')
			if e.SummaryTranslated != "" {
				b.WriteString(dl.translation(e.SummaryTranslated))
				b.WriteByte('\n')
			}
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// ---- Telegram HTML ----

type htmlDialect struct{}

func (htmlDialect) heading(h heading) string {
	return h.lead + markup.B(h.text).String() + h.trail
}

func (htmlDialect) title(e Entry) string {
	return iconTitle + markup.BH(markup.Link(e.Title, e.Link)).String()
}

func (htmlDialect) translation(text string) string {
	return iconTranslation + markup.I(text).String()
}

func (htmlDialect) authors(text string) string { return iconAuthors + markup.I(text).String() }

func (htmlDialect) summary(text string) string { return iconSummary + markup.Esc(text).String() }

func (htmlDialect) reminder(detailed bool) string {
	head := markup.B(ReminderTitle).String()
	if !detailed {
		return head
	}
	return head + "\n\n" + markup.I(reminderDetail).String()
}

// ---- Telegram MarkdownV2 ----

type markdownDialect struct{}

func (markdownDialect) heading(h heading) string {
	return markup.EscMD(h.lead).String() + markup.BoldMD(h.text).String() + markup.EscMD(h.trail).String()
}

func (markdownDialect) title(e Entry) string {
	return iconTitle + markup.BoldMDH(markup.LinkMD(e.Title, e.Link)).String()
}

func (markdownDialect) translation(text string) string {
	return iconTranslation + markup.ItalicMD(text).String()
}

func (markdownDialect) authors(text string) string {
	return iconAuthors + markup.ItalicMD(text).String()
}

func (markdownDialect) summary(text string) string {
	return iconSummary + markup.EscMD(text).String()
}

func (markdownDialect) reminder(detailed bool) string {
	head := markup.BoldMD(ReminderTitle).String()
	if !detailed {
		return head
	}
	return head + "\n\n" + markup.ItalicMD(reminderDetail).String()
}

// ---- Plain text (webhook text envelope) ----

type plainDialect struct{}

func (plainDialect) heading(h heading) string { return h.lead + h.text + h.trail }

func (plainDialect) title(e Entry) string {
	return iconTitle + e.Title + "\n" + iconLink + e.Link
}

func (plainDialect) translation(text string) string { return iconTranslation + text }
func (plainDialect) authors(text string) string     { return iconAuthors + text }
func (plainDialect) summary(text string) string     { return iconSummary + text }

func (plainDialect) reminder(detailed bool) string {
	if !detailed {
		return ReminderTitle
	}
	return ReminderTitle + "\n\n" + reminderDetail
}

// HTML renders d for Telegram's HTML parse mode.
func HTML(d Digest) string { return renderText(d, htmlDialect{}) }

// MarkdownV2 renders d for Telegram's MarkdownV2 parse mode.
func MarkdownV2(d Digest) string { return renderText(d, markdownDialect{}) }

// Plain renders d without markup.
func Plain(d Digest) string { return renderText(d, plainDialect{}) }
