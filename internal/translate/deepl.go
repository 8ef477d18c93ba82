package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	logx "mlsub/pkg/logx"
)

const (
	deeplProURL  = "https://api.deepl.com"
	deeplFreeURL = "https://api-free.deepl.com"
)

// DeepL translates through the DeepL REST API.
type DeepL struct {
	apiKey  string
	baseURL string
	target  string
	http    *http.Client
	log     logx.Logger
}

func NewDeepL(cfg Config, log logx.Logger) *DeepL {
	if log.IsZero() {
		log = logx.Nop()
	}
	key := strings.TrimSpace(cfg.DeepLAPIKey)
	base := strings.TrimRight(strings.TrimSpace(cfg.DeepLAPIURL), "/")
	if base == "" {
		// Free-plan keys end in ":fx" and live on a separate host.
		base = deeplProURL
		if strings.HasSuffix(key, ":fx") {
			base = deeplFreeURL
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &DeepL{
		apiKey:  key,
		baseURL: base,
		target:  deeplTarget(cfg.TargetLang),
		http:    &http.Client{Timeout: timeout},
		log:     log.With(logx.String("comp", "translate.deepl")),
	}
}

func deeplTarget(lang string) string {
	lang = strings.ToUpper(strings.TrimSpace(lang))
	if lang == "" {
		return "ZH"
	}
	return lang
}

func (d *DeepL) Translate(ctx context.Context, text string) string {
	if blank(text) {
		return text
	}
	out, err := d.translate(ctx, text)
	if err != nil {
		d.log.Warn("translation failed; keeping original text", logx.Err(err))
		return text
	}
	return out
}

func (d *DeepL) translate(ctx context.Context, text string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	payload := struct {
		Text       []string `json:"text"`
		TargetLang string   `json:"target_lang"`
	}{Text: []string{text}, TargetLang: d.target}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v2/translate", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+d.apiKey)

	resp, err := d.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
		Message string `json:"message"`
	}
	decErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out)

	if resp.StatusCode/100 != 2 {
		if decErr == nil && out.Message != "" {
			return "", fmt.Errorf("deepl translate failed: %s (http=%d)", out.Message, resp.StatusCode)
		}
		return "", fmt.Errorf("deepl translate failed: http=%d", resp.StatusCode)
	}
	if decErr != nil {
		return "", fmt.Errorf("deepl translate: decode: %w", decErr)
	}
	if len(out.Translations) == 0 {
		return "", errors.New("deepl translate: empty response")
	}
	return out.Translations[0].Text, nil
}
