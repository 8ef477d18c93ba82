package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	logx "mlsub/pkg/logx"
)

const googleFreeURL = "https://translate.googleapis.com/translate_a/single"

// GoogleFree uses the unauthenticated Google Translate endpoint. It needs no
// credentials, which makes it the fallback when no DeepL key is configured.
type GoogleFree struct {
	endpoint string
	target   string
	http     *http.Client
	log      logx.Logger
}

func NewGoogleFree(cfg Config, log logx.Logger) *GoogleFree {
	if log.IsZero() {
		log = logx.Nop()
	}
	endpoint := strings.TrimSpace(cfg.GoogleAPIURL)
	if endpoint == "" {
		endpoint = googleFreeURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GoogleFree{
		endpoint: endpoint,
		target:   googleTarget(cfg.TargetLang),
		http:     &http.Client{Timeout: timeout},
		log:      log.With(logx.String("comp", "translate.google")),
	}
}

// googleTarget maps DeepL-style codes to Google ones ("ZH" -> "zh-CN").
func googleTarget(lang string) string {
	lang = strings.TrimSpace(lang)
	switch strings.ToUpper(lang) {
	case "", "ZH", "ZH-HANS", "ZH-CN":
		return "zh-CN"
	case "ZH-HANT", "ZH-TW":
		return "zh-TW"
	}
	return strings.ToLower(lang)
}

func (g *GoogleFree) Translate(ctx context.Context, text string) string {
	if blank(text) {
		return text
	}
	out, err := g.translate(ctx, text)
	if err != nil {
		g.log.Warn("translation failed; keeping original text", logx.Err(err))
		return text
	}
	return out
}

func (g *GoogleFree) translate(ctx context.Context, text string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", g.target)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("google translate failed: http=%d", resp.StatusCode)
	}

	// Response shape: [[["translated","source",...], ...], ...]
	var raw []any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&raw); err != nil {
		return "", fmt.Errorf("google translate: decode: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("google translate: empty response")
	}
	segs, ok := raw[0].([]any)
	if !ok {
		return "", errors.New("google translate: unexpected response shape")
	}
	var b strings.Builder
	for _, s := range segs {
		parts, ok := s.([]any)
		if !ok || len(parts) == 0 {
			continue
		}
		if t, ok := parts[0].(string); ok {
			b.WriteString(t)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("google translate: no segments")
	}
	return b.String(), nil
}
