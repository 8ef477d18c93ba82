// Package channel delivers a rendered digest to one concrete destination.
//
// A destination is described by a Target: a Telegram chat reached through the
// Bot API, or a Feishu/Lark incoming webhook. New builds the Sender that
// matches a Target; construction validates the target and fails with an error
// wrapping ErrConfig when it is unusable.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mlsub/internal/notifier/render"
	logx "mlsub/pkg/logx"
)

// Kind names a channel type.
type Kind string

const (
	KindTelegram Kind = "telegram"
	KindWebhook  Kind = "webhook"
)

// DefaultTimeout bounds one Send when Options.Timeout is unset.
const DefaultTimeout = 15 * time.Second

// ErrConfig marks a target that cannot be used as configured.
var ErrConfig = errors.New("channel misconfigured")

// Target is a destination description. The set of implementations is closed.
type Target interface {
	Kind() Kind
	// Configured reports whether the required fields are present.
	Configured() bool
	isTarget()
}

// TelegramTarget is a chat reached through a bot.
type TelegramTarget struct {
	BotToken string
	ChatID   string
}

func (TelegramTarget) Kind() Kind { return KindTelegram }
func (TelegramTarget) isTarget()  {}

func (t TelegramTarget) Configured() bool {
	return strings.TrimSpace(t.BotToken) != "" && strings.TrimSpace(t.ChatID) != ""
}

// WebhookTarget is an incoming-webhook URL with an optional signing secret.
type WebhookTarget struct {
	URL    string
	Secret string
}

func (WebhookTarget) Kind() Kind { return KindWebhook }
func (WebhookTarget) isTarget()  {}

func (t WebhookTarget) Configured() bool { return strings.TrimSpace(t.URL) != "" }

// Options are shared by every adapter.
type Options struct {
	Format  render.Format
	Timeout time.Duration

	// APIURL overrides the Telegram Bot API base URL.
	APIURL string
	// Client overrides the webhook HTTP client. Its Transport also carries
	// Telegram requests.
	Client *http.Client
	// Now overrides the clock used for webhook signatures.
	Now func() time.Time

	Log logx.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Format == "" {
		o.Format = render.FormatText
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log.IsZero() {
		o.Log = logx.Nop()
	}
	return o
}

// Sender delivers one digest.
type Sender interface {
	Name() string
	Send(ctx context.Context, d render.Digest) error
}

// New builds the Sender for t.
func New(t Target, o Options) (Sender, error) {
	switch tt := t.(type) {
	case TelegramTarget:
		return NewTelegram(tt, o)
	case WebhookTarget:
		return NewWebhook(tt, o)
	case nil:
		return nil, fmt.Errorf("%w: no target", ErrConfig)
	default:
		return nil, fmt.Errorf("%w: unsupported target %T", ErrConfig, t)
	}
}
