package app

import (
	"fmt"
	"strings"
	"time"

	"mlsub/internal/article"
	"mlsub/internal/config"
	"mlsub/internal/notifier"
	"mlsub/internal/notifier/channel"
	"mlsub/internal/notifier/render"
	"mlsub/internal/scheduler"
	"mlsub/internal/source/arxiv"
	"mlsub/internal/source/hn"
	"mlsub/internal/storage"
	"mlsub/internal/translate"
	logx "mlsub/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, fmt.Errorf("storage.path is required")
	}
	switch driver {
	case "", "json", "file":
		return storage.Config{Driver: "json", Path: path}, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapSource(cfg *config.Config, log logx.Logger) (article.Fetcher, error) {
	sc := cfg.Source
	timeout, err := config.ParseDurationOrDefault("source.timeout", sc.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(sc.Name)) {
	case article.SourceArxiv:
		return arxiv.New(
			arxiv.WithBaseURL(sc.ArxivURL),
			arxiv.WithTimeout(timeout),
			arxiv.WithLogger(log),
		), nil
	case article.SourceHN:
		opts := []hn.Option{
			hn.WithBaseURL(sc.HNURL),
			hn.WithTimeout(timeout),
			hn.WithConcurrency(sc.HNConcurrency),
			hn.WithLogger(log),
		}
		if sc.HNRatePerSec > 0 {
			opts = append(opts, hn.WithRate(float64(sc.HNRatePerSec)))
		}
		return hn.New(opts...), nil
	default:
		return nil, fmt.Errorf("unknown source: %s", sc.Name)
	}
}

func mapQuery(cfg *config.Config) article.Query {
	return article.Query{
		Search:     cfg.Source.Query,
		MaxResults: cfg.Source.MaxResults,
		Days:       cfg.Source.Days,
	}
}

func mapNotifierSettings(cfg *config.Config) (notifier.Settings, error) {
	nc := cfg.Notify
	timeout, err := config.ParseDurationOrDefault("notify.timeout", nc.Timeout, channel.DefaultTimeout)
	if err != nil {
		return notifier.Settings{}, err
	}
	return notifier.Settings{
		Telegram: channel.TelegramTarget{
			BotToken: strings.TrimSpace(nc.Telegram.Token),
			ChatID:   strings.TrimSpace(string(nc.Telegram.ChatID)),
		},
		Webhook: channel.WebhookTarget{
			URL:    strings.TrimSpace(nc.Webhook.URL),
			Secret: strings.TrimSpace(nc.Webhook.Secret),
		},
		Timeout:        timeout,
		TelegramAPIURL: strings.TrimSpace(nc.Telegram.APIURL),
	}, nil
}

func mapTranslateConfig(cfg *config.Config) (translate.Config, error) {
	tc := cfg.Translate
	timeout, err := config.ParseDurationOrDefault("translate.timeout", tc.Timeout, 10*time.Second)
	if err != nil {
		return translate.Config{}, err
	}
	return translate.Config{
		DeepLAPIKey:  strings.TrimSpace(tc.DeepLAPIKey),
		DeepLAPIURL:  strings.TrimSpace(tc.DeepLAPIURL),
		GoogleAPIURL: strings.TrimSpace(tc.GoogleAPIURL),
		TargetLang:   tc.TargetLang,
		UseFree:      tc.UseFree != nil && *tc.UseFree,
		Timeout:      timeout,
	}, nil
}

func mapRenderOptions(cfg *config.Config) (render.Style, render.Format, error) {
	style, err := render.ParseStyle(cfg.Notify.Style)
	if err != nil {
		return "", "", err
	}
	format, err := render.ParseFormat(cfg.Notify.Format)
	if err != nil {
		return "", "", err
	}
	return style, format, nil
}

func mapSchedule(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Spec: cfg.Schedule.Spec, Timezone: cfg.Schedule.Timezone}
}

// LoggingConfig maps the logging section for logx.
func LoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// validate runs every mapping so a config that would fail mid-run is
// rejected up front.
func validate(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := notifier.ParseSelection(cfg.Notify.Channel); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapSource(cfg, logx.Nop()); err != nil {
		return err
	}
	if _, err := mapNotifierSettings(cfg); err != nil {
		return err
	}
	if _, err := mapTranslateConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapRenderOptions(cfg); err != nil {
		return err
	}
	return nil
}
