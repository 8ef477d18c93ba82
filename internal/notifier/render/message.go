package render

// Message is a rendered notification body: either flat text or a rich
// post, never both.
type Message struct {
	text string
	post *PostDoc
}

func TextMessage(s string) Message { return Message{text: s} }

func PostMessage(doc PostDoc) Message { return Message{post: &doc} }

func (m Message) IsPost() bool { return m.post != nil }

// Text returns the flat body; empty for post messages.
func (m Message) Text() string { return m.text }

// Post returns the rich body; the zero PostDoc for text messages.
func (m Message) Post() PostDoc {
	if m.post == nil {
		return PostDoc{}
	}
	return *m.post
}

// ParseMode is the Telegram parse mode that matches a text dialect.
type ParseMode string

const (
	ParseModeHTML       ParseMode = "HTML"
	ParseModeMarkdownV2 ParseMode = "MarkdownV2"
)

// ForTelegram renders d in the dialect selected by f and returns the body
// with its parse mode.
func ForTelegram(d Digest, f Format) (string, ParseMode) {
	if f == FormatMarkdown {
		return MarkdownV2(d), ParseModeMarkdownV2
	}
	return HTML(d), ParseModeHTML
}

// ForWebhook renders d as a rich post for markdown and as flat text otherwise.
func ForWebhook(d Digest, f Format) Message {
	if f == FormatMarkdown {
		return PostMessage(BuildPost(d))
	}
	return TextMessage(Plain(d))
}
