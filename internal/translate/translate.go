// Package translate provides machine translation for notification text.
//
// Every Translator absorbs its own failures: on quota, network or language
// errors it logs a warning and hands the original text back, so callers
// never see an error value. Callers detect "nothing was translated" with
// Changed.
package translate

import (
	"context"
	"strings"
	"time"

	logx "mlsub/pkg/logx"
)

// Translator translates text into the configured target language.
type Translator interface {
	Translate(ctx context.Context, text string) string
}

// Nop returns its input unchanged. It is the default when no backend is configured.
type Nop struct{}

func (Nop) Translate(_ context.Context, text string) string { return text }

// Func adapts a plain function to Translator.
type Func func(ctx context.Context, text string) string

func (f Func) Translate(ctx context.Context, text string) string { return f(ctx, text) }

// Changed reports whether translated carries new content compared to original.
func Changed(original, translated string) bool {
	t := strings.TrimSpace(translated)
	return t != "" && t != strings.TrimSpace(original)
}

// Config selects and configures a backend.
type Config struct {
	DeepLAPIKey string
	// DeepLAPIURL overrides the endpoint base (e.g. for tests).
	DeepLAPIURL string
	// GoogleAPIURL overrides the free Google endpoint (e.g. for tests).
	GoogleAPIURL string
	TargetLang   string
	UseFree      bool
	Timeout      time.Duration
}

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20
)

// New returns DeepL when an API key is configured, the free Google backend
// when UseFree is set, and Nop otherwise.
func New(cfg Config, log logx.Logger) Translator {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.DeepLAPIKey) != "" {
		log.Info("deepl translation enabled", logx.String("target", deeplTarget(cfg.TargetLang)))
		return NewDeepL(cfg, log)
	}
	if cfg.UseFree {
		log.Info("free google translation enabled", logx.String("target", googleTarget(cfg.TargetLang)))
		return NewGoogleFree(cfg, log)
	}
	log.Debug("translation disabled")
	return Nop{}
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
