package render

// Element is one inline node of a rich post paragraph. The JSON shape is the
// webhook provider's post element.
type Element struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
	Href string `json:"href,omitempty"`
}

// PostDoc is a rich document: a title plus paragraphs of inline elements.
// Nothing in it is markup-escaped; the transport carries it as structured JSON.
type PostDoc struct {
	Title   string      `json:"title"`
	Content [][]Element `json:"content"`
}

func textBlock(s string) []Element { return []Element{{Tag: "text", Text: s}} }

func linkBlock(text, href string) []Element {
	return []Element{{Tag: "a", Text: text, Href: href}}
}

// spacer separates articles visually.
func spacer() []Element { return textBlock("") }

// BuildPost renders d as a rich document.
func BuildPost(d Digest) PostDoc {
	if d.Empty() {
		if !d.detailed() {
			return PostDoc{Content: [][]Element{textBlock(ReminderTitle)}}
		}
		return PostDoc{Title: ReminderTitle, Content: [][]Element{textBlock(reminderDetail)}}
	}

	doc := PostDoc{
		Title:   plainDialect{}.heading(headingFor(d.Source)),
		Content: make([][]Element, 0, len(d.Entries)*3),
	}
	for _, e := range d.Entries {
		doc.Content = append(doc.Content, linkBlock(iconTitle+e.Title, e.Link))
		if e.TitleTranslated != "" {
			doc.Content = append(doc.Content, textBlock(iconTranslation+e.TitleTranslated))
		}
		if e.Authors != "" {
			doc.Content = append(doc.Content, textBlock(iconAuthors+e.Authors))
		}
		if e.Summary != "" {
			doc.Content = append(doc.Content, textBlock(iconSummary+e.Summary))
			if e.SummaryTranslated != "" {
				doc.Content = append(doc.Content, textBlock(iconTranslation+e.SummaryTranslated))
			}
		}
		doc.Content = append(doc.Content, spacer())
	}
	return doc
}
