package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mlsub/internal/notifier/render"
	logx "mlsub/pkg/logx"

	tele "gopkg.in/telebot.v4"
)

// Telegram's hard limit is 4096 characters; keep some slack for entities.
const telegramTextLimit = 4000

// Telegram sends digests to one chat through the Bot API.
type Telegram struct {
	chatID   string
	format   render.Format
	settings tele.Settings
	timeout  time.Duration
	base     http.RoundTripper
	log      logx.Logger
}

// NewTelegram validates t and prepares an offline bot client; no request is
// made until Send.
func NewTelegram(t TelegramTarget, o Options) (*Telegram, error) {
	o = o.withDefaults()
	token := strings.TrimSpace(t.BotToken)
	chatID := strings.TrimSpace(t.ChatID)
	if token == "" {
		return nil, fmt.Errorf("%w: telegram bot token is empty", ErrConfig)
	}
	if chatID == "" {
		return nil, fmt.Errorf("%w: telegram chat id is empty", ErrConfig)
	}

	// An empty URL selects telebot's public API endpoint.
	settings := tele.Settings{
		Token:   token,
		URL:     strings.TrimRight(strings.TrimSpace(o.APIURL), "/"),
		Offline: true,
	}
	if _, err := tele.NewBot(settings); err != nil {
		return nil, fmt.Errorf("%w: telegram: %v", ErrConfig, err)
	}
	base := http.DefaultTransport
	if o.Client != nil && o.Client.Transport != nil {
		base = o.Client.Transport
	}
	return &Telegram{
		chatID:   chatID,
		format:   o.Format,
		settings: settings,
		timeout:  o.Timeout,
		base:     base,
		log:      o.Log.With(logx.String("channel", string(KindTelegram))),
	}, nil
}

// botFor returns an offline bot whose requests are bound to ctx. telebot's
// Raw builds its own request context, so ctx is attached in the transport.
func (t *Telegram) botFor(ctx context.Context) (*tele.Bot, error) {
	s := t.settings
	s.Client = &http.Client{
		Timeout:   t.timeout,
		Transport: ctxTransport{ctx: ctx, base: t.base},
	}
	return tele.NewBot(s)
}

// ctxTransport cancels every request when ctx is done, in addition to the
// request's own context.
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (c ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := c.ctx.Err(); err != nil {
		return nil, err
	}
	rctx, cancel := context.WithCancelCause(req.Context())
	stop := context.AfterFunc(c.ctx, func() { cancel(c.ctx.Err()) })
	context.AfterFunc(rctx, func() { stop() })
	return c.base.RoundTrip(req.WithContext(rctx))
}

func (t *Telegram) Name() string { return string(KindTelegram) }

// Send renders d and posts it, split into as many messages as needed.
// Chunks go out in order; the first failure ends the attempt.
func (t *Telegram) Send(ctx context.Context, d render.Digest) error {
	text, mode := render.ForTelegram(d, t.format)
	chunks := splitText(text, telegramTextLimit, mode)
	bot, err := t.botFor(ctx)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.sendMessage(bot, chunk, mode); err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return fmt.Errorf("telegram sendMessage (part %d/%d): %w: %v", i+1, len(chunks), cerr, err)
			}
			return fmt.Errorf("telegram sendMessage (part %d/%d): %w", i+1, len(chunks), err)
		}
	}
	t.log.Debug("telegram message sent", logx.Int("parts", len(chunks)), logx.String("parse_mode", string(mode)))
	return nil
}

func (t *Telegram) sendMessage(bot *tele.Bot, text string, mode render.ParseMode) error {
	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               string(mode),
		"disable_web_page_preview": true,
	}
	data, err := bot.Raw("sendMessage", payload)
	if err != nil {
		return err
	}
	// Raw accepts bodies it cannot parse; require an explicit ok.
	var out struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !out.OK {
		if out.Description == "" {
			out.Description = "ok=false"
		}
		return fmt.Errorf("telegram api: %s", out.Description)
	}
	return nil
}

// splitText cuts s into chunks of at most limit runes. Cuts prefer a blank
// line, then any newline, and never leave an HTML tag or a MarkdownV2 escape
// dangling.
func splitText(s string, limit int, mode render.ParseMode) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end >= len(rs) {
			end = len(rs)
		} else {
			end = cutPoint(rs, start, end, limit, mode)
		}
		if chunk := strings.Trim(string(rs[start:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
	}
	return out
}

func cutPoint(rs []rune, start, end, limit int, mode render.ParseMode) int {
	// Avoid extremely small chunks.
	minLen := limit / 3
	for _, blank := range []bool{true, false} {
		for i := end - 1; i > start && i-start >= minLen; i-- {
			if rs[i] == '\n' && (!blank || rs[i-1] == '\n') {
				return i + 1
			}
		}
	}

	switch mode {
	case render.ParseModeHTML:
		lastOpen, lastClose := -1, -1
		for i := start; i < end; i++ {
			switch rs[i] {
			case '<':
				lastOpen = i
			case '>':
				lastClose = i
			}
		}
		if lastOpen > lastClose && lastOpen > start {
			return lastOpen
		}
	case render.ParseModeMarkdownV2:
		n := 0
		for i := end - 1; i >= start && rs[i] == '\\'; i-- {
			n++
		}
		if n%2 == 1 && end-1 > start {
			return end - 1
		}
	}
	return end
}
