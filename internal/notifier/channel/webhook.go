package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mlsub/internal/notifier/render"
	logx "mlsub/pkg/logx"
)

// webhookHooks are the accepted incoming-webhook endpoints, matched
// case-insensitively anywhere in the URL.
var webhookHooks = []string{
	"open.feishu.cn/open-apis/bot/v2/hook/",
	"open.larksuite.com/open-apis/bot/v2/hook/",
	"open.larkoffice.com/open-apis/bot/v2/hook/",
}

// Post content is published under a single locale.
const postLocale = "zh_cn"

const maxWebhookResponse = 1 << 20

// Webhook posts digests to a Feishu/Lark custom bot.
type Webhook struct {
	url     string
	secret  string
	format  render.Format
	timeout time.Duration
	client  *http.Client
	now     func() time.Time
	log     logx.Logger
}

// AllowedWebhookURL reports whether u points at a supported webhook endpoint.
func AllowedWebhookURL(u string) bool {
	lu := strings.ToLower(u)
	for _, h := range webhookHooks {
		if strings.Contains(lu, h) {
			return true
		}
	}
	return false
}

// NewWebhook validates t. No request is made until Send.
func NewWebhook(t WebhookTarget, o Options) (*Webhook, error) {
	o = o.withDefaults()
	u := strings.TrimSpace(t.URL)
	if u == "" {
		return nil, fmt.Errorf("%w: webhook url is empty", ErrConfig)
	}
	if !AllowedWebhookURL(u) {
		return nil, fmt.Errorf("%w: webhook url %q is not a Feishu/Lark bot hook", ErrConfig, u)
	}
	client := o.Client
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	}
	return &Webhook{
		url:     u,
		secret:  strings.TrimSpace(t.Secret),
		format:  o.Format,
		timeout: o.Timeout,
		client:  client,
		now:     o.Now,
		log:     o.Log.With(logx.String("channel", string(KindWebhook))),
	}, nil
}

func (w *Webhook) Name() string { return string(KindWebhook) }

type webhookEnvelope struct {
	Timestamp string `json:"timestamp,omitempty"`
	Sign      string `json:"sign,omitempty"`
	MsgType   string `json:"msg_type"`
	Content   any    `json:"content"`
}

type webhookText struct {
	Text string `json:"text"`
}

type webhookPost struct {
	Post map[string]render.PostDoc `json:"post"`
}

func envelopeFor(m render.Message) webhookEnvelope {
	if m.IsPost() {
		return webhookEnvelope{
			MsgType: "post",
			Content: webhookPost{Post: map[string]render.PostDoc{postLocale: m.Post()}},
		}
	}
	return webhookEnvelope{MsgType: "text", Content: webhookText{Text: m.Text()}}
}

// sign computes the custom-bot signature: HMAC-SHA256 keyed with
// "timestamp\nsecret" over an empty message, base64 encoded.
func sign(timestamp, secret string) string {
	h := hmac.New(sha256.New, []byte(timestamp+"\n"+secret))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Send renders d and posts it as a single JSON envelope.
func (w *Webhook) Send(ctx context.Context, d render.Digest) error {
	env := envelopeFor(render.ForWebhook(d, w.format))
	if w.secret != "" {
		env.Timestamp = strconv.FormatInt(w.now().Unix(), 10)
		env.Sign = sign(env.Timestamp, w.secret)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("webhook: encode: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponse))

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook: http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out struct {
		Code *int   `json:"code"`
		Msg  string `json:"msg"`
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("webhook: decode response: %w", err)
		}
	}
	if out.Code != nil && *out.Code != 0 {
		return fmt.Errorf("webhook: api error code=%d msg=%s", *out.Code, out.Msg)
	}
	w.log.Debug("webhook message sent", logx.String("msg_type", env.MsgType))
	return nil
}
