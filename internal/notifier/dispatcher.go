package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mlsub/internal/article"
	"mlsub/internal/notifier/channel"
	"mlsub/internal/notifier/render"
	logx "mlsub/pkg/logx"
)

// Selection names the channels a dispatch should use.
type Selection string

const (
	SelectNone     Selection = ""
	SelectTelegram Selection = "telegram"
	SelectWebhook  Selection = "webhook"
	SelectAll      Selection = "all"
)

// ParseSelection parses a channel selection. "none" and "" both disable
// notifications.
func ParseSelection(s string) (Selection, error) {
	switch v := Selection(strings.ToLower(strings.TrimSpace(s))); v {
	case SelectNone, "none":
		return SelectNone, nil
	case SelectTelegram, SelectWebhook, SelectAll:
		return v, nil
	}
	return SelectNone, fmt.Errorf("invalid notifier %q (use telegram, webhook or all)", s)
}

// order is the fixed priority used for SelectAll.
var order = []channel.Kind{channel.KindTelegram, channel.KindWebhook}

// Settings is the resolved channel configuration.
type Settings struct {
	Telegram channel.TelegramTarget
	Webhook  channel.WebhookTarget

	// Timeout bounds each channel's send; zero uses channel.DefaultTimeout.
	Timeout time.Duration
	// TelegramAPIURL overrides the Bot API endpoint.
	TelegramAPIURL string
}

func (s Settings) target(k channel.Kind) channel.Target {
	switch k {
	case channel.KindTelegram:
		return s.Telegram
	case channel.KindWebhook:
		return s.Webhook
	}
	return nil
}

// Resolve returns the channels for sel in dispatch order. An explicitly named
// channel is returned even when it is not configured, so that its
// construction failure gets reported.
func Resolve(sel Selection, s Settings) []channel.Kind {
	switch sel {
	case SelectTelegram:
		return []channel.Kind{channel.KindTelegram}
	case SelectWebhook:
		return []channel.Kind{channel.KindWebhook}
	case SelectAll:
		out := make([]channel.Kind, 0, len(order))
		for _, k := range order {
			if s.target(k).Configured() {
				out = append(out, k)
			}
		}
		return out
	}
	return nil
}

// Factory builds a Sender. channel.New is the default.
type Factory func(t channel.Target, o channel.Options) (channel.Sender, error)

// Outcome is what happened to one channel.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result is the outcome for one channel.
type Result struct {
	Channel channel.Kind
	Outcome Outcome
	Err     error
}

// Report lists per-channel results in dispatch order.
type Report struct {
	Articles int
	Reminder bool
	Results  []Result
}

// Sent counts channels that accepted the message.
func (r Report) Sent() int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == OutcomeSent {
			n++
		}
	}
	return n
}

func (r Report) String() string {
	if len(r.Results) == 0 {
		return "no channels"
	}
	parts := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		parts = append(parts, string(res.Channel)+"="+string(res.Outcome))
	}
	return strings.Join(parts, " ")
}

// Dispatcher sends digests to the configured channels.
type Dispatcher struct {
	settings Settings
	log      logx.Logger
	factory  Factory
}

type Option func(*Dispatcher)

// WithFactory replaces the Sender constructor.
func WithFactory(f Factory) Option {
	return func(d *Dispatcher) {
		if f != nil {
			d.factory = f
		}
	}
}

func New(s Settings, log logx.Logger, opts ...Option) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		settings: s,
		log:      log.With(logx.String("comp", "notifier")),
		factory:  channel.New,
	}
	for _, o := range opts {
		if o != nil {
			o(d)
		}
	}
	return d
}

// Dispatch sends articles, or the reminder when there are none, to every
// channel resolved from sel. Channels are tried sequentially; failures are
// logged and recorded, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, articles []article.Article, sel Selection, cfg render.Config) Report {
	rep := Report{Articles: len(articles), Reminder: len(articles) == 0}
	kinds := Resolve(sel, d.settings)
	if len(kinds) == 0 {
		d.log.Warn("no notification channels configured", logx.String("selection", string(sel)))
		return rep
	}

	if rep.Reminder {
		d.log.Info("no new articles, sending reminder", logx.Int("channels", len(kinds)))
	} else {
		d.log.Info("sending notification", logx.Int("articles", len(articles)), logx.Int("channels", len(kinds)))
	}
	digest := render.Prepare(ctx, articles, cfg)

	opts := channel.Options{
		Format:  cfg.Format,
		Timeout: d.settings.Timeout,
		APIURL:  d.settings.TelegramAPIURL,
		Log:     d.log,
	}
	timeout := d.settings.Timeout
	if timeout <= 0 {
		timeout = channel.DefaultTimeout
	}

	for _, k := range kinds {
		log := d.log.With(logx.String("channel", string(k)))
		sender, err := d.factory(d.settings.target(k), opts)
		if err != nil {
			log.Warn("channel not usable, skipping", logx.Err(err), logx.Bool("config_error", errors.Is(err, channel.ErrConfig)))
			rep.Results = append(rep.Results, Result{Channel: k, Outcome: OutcomeSkipped, Err: err})
			continue
		}

		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, timeout)
		err = sender.Send(sctx, digest)
		cancel()
		if err != nil {
			log.Error("notification failed", logx.Err(err), logx.Duration("took", time.Since(start)))
			rep.Results = append(rep.Results, Result{Channel: k, Outcome: OutcomeFailed, Err: err})
			continue
		}
		log.Info("notification sent", logx.Duration("took", time.Since(start)))
		rep.Results = append(rep.Results, Result{Channel: k, Outcome: OutcomeSent})
	}
	return rep
}
