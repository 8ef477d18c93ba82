package render

import (
	"context"
	"strings"
	"sync"
	"testing"
	"unicode"
	"unicode/utf8"

	"mlsub/internal/article"
	"mlsub/internal/translate"
	"mlsub/pkg/markup"
)

func arxivArticle(title, summary, link string) article.Article {
	return article.Article{
		Title:    title,
		Authors:  []string{"Ada Lovelace"},
		Summary:  summary,
		Link:     link,
		Metadata: map[string]any{"source": article.SourceArxiv},
	}
}

// recorder translates by prefixing "ZH:" and remembers every input.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) Translate(_ context.Context, text string) string {
	r.mu.Lock()
	r.calls = append(r.calls, text)
	r.mu.Unlock()
	return "ZH:" + text
}

func prepare(t *testing.T, articles []article.Article, style Style, tr translate.Translator) Digest {
	t.Helper()
	return Prepare(context.Background(), articles, Config{Style: style, Translator: tr})
}

func allDialects(d Digest) map[string]string {
	post := BuildPost(d)
	var b strings.Builder
	b.WriteString(post.Title)
	for _, p := range post.Content {
		for _, el := range p {
			b.WriteString("\n")
			b.WriteString(el.Text)
		}
	}
	return map[string]string{
		"html":     HTML(d),
		"markdown": MarkdownV2(d),
		"plain":    Plain(d),
		"post":     b.String(),
	}
}

func TestHTMLExampleOrder(t *testing.T) {
	t.Parallel()
	d := prepare(t, []article.Article{arxivArticle("Foo", "Bar", "http://x")}, StyleDetailed, nil)
	out := HTML(d)

	heading := "✨ <b>New ML/DL Papers Found!</b> ✨"
	anchor := `<a href="http://x">Foo</a>`
	summary := "📝 Bar"
	hi, ai, si := strings.Index(out, heading), strings.Index(out, anchor), strings.Index(out, summary)
	if hi < 0 || ai < 0 || si < 0 {
		t.Fatalf("missing piece in output:\n%s", out)
	}
	if !(hi < ai && ai < si) {
		t.Fatalf("pieces out of order (heading=%d anchor=%d summary=%d):\n%s", hi, ai, si, out)
	}
	if !strings.Contains(out, "<b>"+anchor+"</b>") {
		t.Fatalf("title must be bold link:\n%s", out)
	}
}

func TestHNFillerSummaryOmitted(t *testing.T) {
	t.Parallel()
	a := article.Article{
		Title:    "Show HN: Foo",
		Authors:  []string{"pg"},
		Summary:  article.HNDefaultSummary,
		Link:     "http://x",
		Metadata: map[string]any{"source": article.SourceHN},
	}
	d := prepare(t, []article.Article{a}, StyleDetailed, nil)
	for name, out := range allDialects(d) {
		if strings.Contains(out, iconSummary) || strings.Contains(out, article.HNDefaultSummary) {
			t.Fatalf("%s: filler summary emitted:\n%s", name, out)
		}
	}
	if !strings.Contains(HTML(d), "🚀 <b>Hacker News 热门讨论</b>") {
		t.Fatalf("missing HN heading:\n%s", HTML(d))
	}
}

func TestHeadingFallback(t *testing.T) {
	t.Parallel()
	a := article.Article{Title: "T", Link: "http://x", Metadata: map[string]any{"source": "rss"}}
	d := prepare(t, []article.Article{a}, StyleCompact, nil)
	if !strings.HasPrefix(HTML(d), "📢 <b>New Articles</b>") {
		t.Fatalf("expected generic heading, got:\n%s", HTML(d))
	}
	if !strings.HasPrefix(Plain(d), "📢 New Articles") {
		t.Fatalf("expected generic plain heading, got:\n%s", Plain(d))
	}
}

func TestHTMLEscapesUserText(t *testing.T) {
	t.Parallel()
	a := arxivArticle(`<script>"x" & 'y'</script>`, `a < b > c & "d"`, `http://x/?a=1&b="2"`)
	a.Authors = []string{"<Eve>"}
	out := HTML(prepare(t, []article.Article{a}, StyleDetailed, nil))

	for _, raw := range []string{"<script>", `"x"`, "<Eve>", "a < b", `&b="2"`} {
		if strings.Contains(out, raw) {
			t.Fatalf("unescaped %q in output:\n%s", raw, out)
		}
	}
	for _, want := range []string{
		"&lt;script&gt;&#34;x&#34; &amp; &#39;y&#39;&lt;/script&gt;",
		"a &lt; b &gt; c &amp; &#34;d&#34;",
		"&lt;Eve&gt;",
		`href="http://x/?a=1&amp;b=&#34;2&#34;"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestMarkdownV2EscapesUserText(t *testing.T) {
	t.Parallel()
	title := `a_b*c[d](e)~f` + "`" + `g>h#i+j-k=l|m{n}o.p!q\r`
	a := arxivArticle(title, "1.5 + 2 = 3.5!", "http://x/a_(b)")
	out := MarkdownV2(prepare(t, []article.Article{a}, StyleDetailed, nil))

	want := `a\_b\*c\[d\]\(e\)\~f\` + "`" + `g\>h\#i\+j\-k\=l\|m\{n\}o\.p\!q\\r`
	if !strings.Contains(out, "["+want+"]") {
		t.Fatalf("title not escaped as %q:\n%s", want, out)
	}
	if !strings.Contains(out, `(http://x/a_\(b\))`) {
		t.Fatalf("link target not escaped:\n%s", out)
	}
	if !strings.Contains(out, `1\.5 \+ 2 \= 3\.5\!`) {
		t.Fatalf("summary not escaped:\n%s", out)
	}
	if !strings.Contains(out, `✨ *New ML/DL Papers Found\!* ✨`) {
		t.Fatalf("heading not escaped:\n%s", out)
	}
}

func TestEveryTitleAppearsInEveryDialect(t *testing.T) {
	t.Parallel()
	articles := []article.Article{
		arxivArticle("First & <one>", "s1", "http://a"),
		arxivArticle("Second (two).", "s2", "http://b"),
		arxivArticle("Third_three", "s3", "http://c"),
	}
	d := prepare(t, articles, StyleDetailed, nil)
	html, md, plain, post := HTML(d), MarkdownV2(d), Plain(d), BuildPost(d)
	for _, a := range articles {
		if !strings.Contains(html, markup.Esc(a.Title).String()) {
			t.Fatalf("html missing %q", a.Title)
		}
		if !strings.Contains(md, markup.EscMD(a.Title).String()) {
			t.Fatalf("markdown missing %q", a.Title)
		}
		if !strings.Contains(plain, a.Title) {
			t.Fatalf("plain missing %q", a.Title)
		}
		found := false
		for _, p := range post.Content {
			if len(p) == 1 && p[0].Tag == "a" && strings.HasSuffix(p[0].Text, a.Title) && p[0].Href == a.Link {
				found = true
			}
		}
		if !found {
			t.Fatalf("post missing link block for %q", a.Title)
		}
	}
}

func TestTranslationDuplicateSuppression(t *testing.T) {
	t.Parallel()
	a := arxivArticle("Same", "Also same", "http://x")
	d := prepare(t, []article.Article{a}, StyleDetailed, translate.Nop{})
	for name, out := range allDialects(d) {
		if strings.Contains(out, iconTranslation) {
			t.Fatalf("%s: translated block emitted for identity translation:\n%s", name, out)
		}
	}

	// Title unchanged, summary translated.
	partial := translate.Func(func(_ context.Context, s string) string {
		if s == "Also same" {
			return "也一样"
		}
		return s
	})
	d = prepare(t, []article.Article{a}, StyleDetailed, partial)
	if d.Entries[0].TitleTranslated != "" {
		t.Fatalf("TitleTranslated = %q, want empty", d.Entries[0].TitleTranslated)
	}
	if d.Entries[0].SummaryTranslated != "也一样" {
		t.Fatalf("SummaryTranslated = %q", d.Entries[0].SummaryTranslated)
	}
	for name, out := range allDialects(d) {
		if strings.Count(out, iconTranslation) != 1 {
			t.Fatalf("%s: want exactly one translated block:\n%s", name, out)
		}
	}
}

func TestTranslatedBlocksOrder(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	d := prepare(t, []article.Article{arxivArticle("Foo", "Bar", "http://x")}, StyleDetailed, r)
	out := Plain(d)
	order := []string{"📄 Foo", "🌐 ZH:Foo", "👤 Ada Lovelace", "📝 Bar", "🌐 ZH:Bar"}
	last := -1
	for _, part := range order {
		i := strings.Index(out, part)
		if i <= last {
			t.Fatalf("%q out of order in:\n%s", part, out)
		}
		last = i
	}

	post := BuildPost(d)
	tags := make([]string, 0, len(post.Content))
	for _, p := range post.Content {
		tags = append(tags, p[0].Tag+":"+p[0].Text)
	}
	want := []string{"a:📄 Foo", "text:🌐 ZH:Foo", "text:👤 Ada Lovelace", "text:📝 Bar", "text:🌐 ZH:Bar", "text:"}
	if strings.Join(tags, "|") != strings.Join(want, "|") {
		t.Fatalf("post blocks = %v, want %v", tags, want)
	}
}

func TestSummaryTruncation(t *testing.T) {
	t.Parallel()
	words := strings.Repeat("lorem ipsum dolor sit amet ", 30)
	d := prepare(t, []article.Article{arxivArticle("T", words, "http://x")}, StyleDetailed, nil)
	got := d.Entries[0].Summary

	if !strings.HasSuffix(got, markup.Ellipsis) {
		t.Fatalf("expected ellipsis, got %q", got)
	}
	body := strings.TrimSuffix(got, markup.Ellipsis)
	if n := utf8.RuneCountInString(body); n > SummaryMaxRunes {
		t.Fatalf("summary body has %d runes, want <= %d", n, SummaryMaxRunes)
	}
	normalized := strings.Join(strings.Fields(words), " ")
	if !strings.HasPrefix(normalized, body) {
		t.Fatalf("summary is not a prefix of the source")
	}
	next, _ := utf8.DecodeRuneInString(normalized[len(body):])
	if !unicode.IsSpace(next) {
		t.Fatalf("cut mid-word: next rune after cut is %q", next)
	}
}

func TestLongTitleAndAuthorsBounded(t *testing.T) {
	t.Parallel()
	a := arxivArticle(strings.Repeat("word ", 900), "S", "http://x")
	for i := 0; i < 400; i++ {
		a.Authors = append(a.Authors, "Author Name")
	}
	d := prepare(t, []article.Article{a}, StyleDetailed, nil)
	e := d.Entries[0]

	for name, tc := range map[string]struct {
		got string
		max int
	}{
		"title":   {e.Title, TitleMaxRunes},
		"authors": {e.Authors, AuthorsMaxRunes},
	} {
		if !strings.HasSuffix(tc.got, markup.Ellipsis) {
			t.Fatalf("%s not truncated: %d runes", name, utf8.RuneCountInString(tc.got))
		}
		if n := utf8.RuneCountInString(strings.TrimSuffix(tc.got, markup.Ellipsis)); n > tc.max {
			t.Fatalf("%s has %d runes, want <= %d", name, n, tc.max)
		}
	}
}

func TestShortSummaryUntouched(t *testing.T) {
	t.Parallel()
	d := prepare(t, []article.Article{arxivArticle("T", "  short\n summary ", "http://x")}, StyleDetailed, nil)
	if got := d.Entries[0].Summary; got != "short summary" {
		t.Fatalf("Summary = %q", got)
	}
}

func TestCompactOmitsSummaries(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	articles := []article.Article{arxivArticle("Foo", "Bar", "http://x"), arxivArticle("Baz", "Qux", "http://y")}
	d := prepare(t, articles, StyleCompact, r)

	for name, out := range allDialects(d) {
		for _, bad := range []string{"Bar", "Qux", iconSummary, iconAuthors} {
			if strings.Contains(out, bad) {
				t.Fatalf("%s: compact output contains %q:\n%s", name, bad, out)
			}
		}
		if !strings.Contains(out, "ZH:Foo") {
			t.Fatalf("%s: compact output should still carry title translations:\n%s", name, out)
		}
	}
	if len(r.calls) != 2 || r.calls[0] != "Foo" || r.calls[1] != "Baz" {
		t.Fatalf("translator calls = %v, want titles only", r.calls)
	}
}

func TestReminder(t *testing.T) {
	t.Parallel()
	tests := []struct {
		style Style
		html  string
		md    string
		plain string
	}{
		{
			style: StyleDetailed,
			html:  "<b>📭 No new articles today</b>\n\n<i>" + reminderDetail + "</i>",
			md:    "*📭 No new articles today*\n\n_" + markup.EscMD(reminderDetail).String() + "_",
			plain: ReminderTitle + "\n\n" + reminderDetail,
		},
		{
			style: StyleCompact,
			html:  "<b>📭 No new articles today</b>",
			md:    "*📭 No new articles today*",
			plain: ReminderTitle,
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.style), func(t *testing.T) {
			t.Parallel()
			r := &recorder{}
			d := prepare(t, nil, tt.style, r)
			if !d.Empty() || d.Source != article.SourceUnknown {
				t.Fatalf("unexpected digest: %+v", d)
			}
			if got := HTML(d); got != tt.html {
				t.Fatalf("HTML = %q, want %q", got, tt.html)
			}
			if got := MarkdownV2(d); got != tt.md {
				t.Fatalf("MarkdownV2 = %q, want %q", got, tt.md)
			}
			if got := Plain(d); got != tt.plain {
				t.Fatalf("Plain = %q, want %q", got, tt.plain)
			}
			if len(r.calls) != 0 {
				t.Fatalf("reminder must not translate, calls=%v", r.calls)
			}
		})
	}

	detailed := BuildPost(prepare(t, nil, StyleDetailed, nil))
	if detailed.Title != ReminderTitle || len(detailed.Content) != 1 || detailed.Content[0][0].Text != reminderDetail {
		t.Fatalf("detailed reminder post = %+v", detailed)
	}
	compact := BuildPost(prepare(t, nil, StyleCompact, nil))
	if compact.Title != "" || len(compact.Content) != 1 || compact.Content[0][0].Text != ReminderTitle {
		t.Fatalf("compact reminder post = %+v", compact)
	}
}

func TestPostSpacerAfterEachArticle(t *testing.T) {
	t.Parallel()
	articles := []article.Article{arxivArticle("A", "", "http://a"), arxivArticle("B", "", "http://b")}
	doc := BuildPost(prepare(t, articles, StyleCompact, nil))
	want := []string{"a", "text", "a", "text"}
	if len(doc.Content) != len(want) {
		t.Fatalf("len(Content) = %d, want %d: %+v", len(doc.Content), len(want), doc.Content)
	}
	for i, p := range doc.Content {
		if p[0].Tag != want[i] {
			t.Fatalf("block %d tag = %s, want %s", i, p[0].Tag, want[i])
		}
	}
	if doc.Content[1][0].Text != "" || doc.Content[3][0].Text != "" {
		t.Fatalf("spacers must be blank: %+v", doc.Content)
	}
	if doc.Title != "✨ New ML/DL Papers Found! ✨" {
		t.Fatalf("Title = %q", doc.Title)
	}
}

func TestChannelSelectors(t *testing.T) {
	t.Parallel()
	d := prepare(t, []article.Article{arxivArticle("Foo", "Bar", "http://x")}, StyleDetailed, nil)

	if body, mode := ForTelegram(d, FormatText); mode != ParseModeHTML || body != HTML(d) {
		t.Fatalf("ForTelegram(text) = %q, %s", body, mode)
	}
	if body, mode := ForTelegram(d, FormatMarkdown); mode != ParseModeMarkdownV2 || body != MarkdownV2(d) {
		t.Fatalf("ForTelegram(markdown) = %q, %s", body, mode)
	}
	if m := ForWebhook(d, FormatText); m.IsPost() || m.Text() != Plain(d) {
		t.Fatalf("ForWebhook(text) = %+v", m)
	}
	if m := ForWebhook(d, FormatMarkdown); !m.IsPost() || m.Text() != "" || len(m.Post().Content) == 0 {
		t.Fatalf("ForWebhook(markdown) = %+v", m)
	}
}

func TestFormatDoesNotAffectTranslation(t *testing.T) {
	t.Parallel()
	for _, f := range []Format{FormatText, FormatMarkdown} {
		r := &recorder{}
		Prepare(context.Background(), []article.Article{arxivArticle("Foo", "Bar", "http://x")}, Config{Style: StyleDetailed, Format: f, Translator: r})
		if len(r.calls) != 2 {
			t.Fatalf("format %s: calls = %v", f, r.calls)
		}
	}
}

func TestParseStyleAndFormat(t *testing.T) {
	t.Parallel()
	if s, err := ParseStyle(""); err != nil || s != StyleDetailed {
		t.Fatalf("ParseStyle(\"\") = %v, %v", s, err)
	}
	if s, err := ParseStyle("Compact"); err != nil || s != StyleCompact {
		t.Fatalf("ParseStyle(Compact) = %v, %v", s, err)
	}
	if _, err := ParseStyle("verbose"); err == nil {
		t.Fatal("expected error for unknown style")
	}
	if f, err := ParseFormat("markdown"); err != nil || f != FormatMarkdown {
		t.Fatalf("ParseFormat(markdown) = %v, %v", f, err)
	}
	if _, err := ParseFormat("html"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
