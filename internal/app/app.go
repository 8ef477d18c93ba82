// Package app wires configuration, sources, storage and the notifier into
// the fetch, notify, visualize and daemon operations.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mlsub/internal/article"
	"mlsub/internal/config"
	"mlsub/internal/notifier"
	"mlsub/internal/notifier/render"
	"mlsub/internal/storage"
	"mlsub/internal/translate"
	"mlsub/internal/visualize"
	logx "mlsub/pkg/logx"
)

// ErrNoArticles is returned by Notify and Visualize when nothing is stored.
var ErrNoArticles = errors.New("no stored articles")

// ErrNoChannel is returned by Notify when no channel is selected.
var ErrNoChannel = errors.New("no notification channel selected")

type App struct {
	mu  sync.RWMutex
	cfg *config.Config

	log  logx.Logger
	logs *logx.Service
	now  func() time.Time

	overrides func(*config.Config)

	// test seams
	fetcher    article.Fetcher
	translator translate.Translator
	factory    notifier.Factory
}

type Option func(*App)

// WithFetcher replaces the configured source.
func WithFetcher(f article.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithTranslator replaces the configured translator.
func WithTranslator(t translate.Translator) Option {
	return func(a *App) { a.translator = t }
}

// WithChannelFactory replaces the channel constructor.
func WithChannelFactory(f notifier.Factory) Option {
	return func(a *App) { a.factory = f }
}

// WithLogService lets the daemon re-apply logging settings on reload.
func WithLogService(s *logx.Service) Option {
	return func(a *App) { a.logs = s }
}

// WithOverrides registers adjustments, such as command-line flags, that are
// re-applied to every reloaded config.
func WithOverrides(fn func(*config.Config)) Option {
	return func(a *App) { a.overrides = fn }
}

func WithClock(now func() time.Time) Option {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

func New(cfg *config.Config, log logx.Logger, opts ...Option) (*App, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &App{cfg: cfg, log: log.With(logx.String("comp", "app")), now: time.Now}
	for _, o := range opts {
		if o != nil {
			o(a)
		}
	}
	return a, nil
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// SetConfig validates cfg and makes it active for the next run.
func (a *App) SetConfig(cfg *config.Config) error {
	if err := validate(cfg); err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	if a.logs != nil {
		a.logs.Apply(LoggingConfig(cfg))
	}
	return nil
}

// FetchOptions tunes one fetch run.
type FetchOptions struct {
	// SkipNotify stores the articles without notifying, including the
	// empty-result reminder.
	SkipNotify bool
}

// FetchResult summarizes one fetch run.
type FetchResult struct {
	RunID    string
	Fetched  int
	Notified int
	// Report is nil when no dispatch happened.
	Report *notifier.Report
}

// Fetch pulls articles from the configured source, stores them and notifies
// the selected channels. An empty result is not stored and produces the
// reminder instead. The notify limit is applied after storing.
func (a *App) Fetch(ctx context.Context, opts FetchOptions) (FetchResult, error) {
	cfg := a.Config()
	res := FetchResult{RunID: uuid.NewString()}
	log := a.log.With(logx.String("run_id", res.RunID), logx.String("op", "fetch"))

	src, err := a.source(cfg, log)
	if err != nil {
		return res, err
	}
	start := time.Now()
	articles, err := src.Fetch(ctx, mapQuery(cfg))
	if err != nil {
		log.Error("fetch failed", logx.String("source", src.Name()), logx.Err(err))
		return res, fmt.Errorf("fetch %s: %w", src.Name(), err)
	}
	res.Fetched = len(articles)

	sel, err := notifier.ParseSelection(cfg.Notify.Channel)
	if err != nil {
		return res, err
	}
	notify := !opts.SkipNotify && sel != notifier.SelectNone

	if len(articles) == 0 {
		log.Info("no articles fetched", logx.String("source", src.Name()), logx.Duration("took", time.Since(start)))
		if notify {
			rep, err := a.dispatch(ctx, cfg, nil, sel, log)
			if err != nil {
				return res, err
			}
			res.Report = &rep
		}
		return res, nil
	}
	log.Info("articles fetched",
		logx.String("source", src.Name()),
		logx.Int("count", len(articles)),
		logx.Duration("took", time.Since(start)),
	)

	if err := a.save(ctx, cfg, articles, log); err != nil {
		return res, err
	}
	if !notify {
		log.Debug("notification skipped", logx.Bool("skip", opts.SkipNotify), logx.String("channel", string(sel)))
		return res, nil
	}

	toSend := article.Limit(articles, cfg.Notify.Limit)
	if len(toSend) == 0 {
		log.Info("notify limit is 0, nothing to send", logx.Int("fetched", len(articles)))
		return res, nil
	}
	if len(toSend) < len(articles) {
		log.Info("limiting notification", logx.Int("sending", len(toSend)), logx.Int("fetched", len(articles)))
	}
	rep, err := a.dispatch(ctx, cfg, toSend, sel, log)
	if err != nil {
		return res, err
	}
	res.Notified = len(toSend)
	res.Report = &rep
	return res, nil
}

// Notify sends the stored articles, capped by the notify limit, to the
// selected channels.
func (a *App) Notify(ctx context.Context) (notifier.Report, error) {
	cfg := a.Config()
	log := a.log.With(logx.String("run_id", uuid.NewString()), logx.String("op", "notify"))

	sel, err := notifier.ParseSelection(cfg.Notify.Channel)
	if err != nil {
		return notifier.Report{}, err
	}
	if sel == notifier.SelectNone {
		log.Warn("no notification channel selected (use telegram, webhook or all)")
		return notifier.Report{}, ErrNoChannel
	}

	articles, err := a.load(ctx, cfg)
	if err != nil {
		return notifier.Report{}, err
	}
	if len(articles) == 0 {
		log.Warn("no articles found, run fetch first", logx.String("path", cfg.Storage.Path))
		return notifier.Report{}, ErrNoArticles
	}

	toSend := article.Limit(articles, cfg.Notify.Limit)
	if len(toSend) == 0 {
		log.Info("notify limit is 0, nothing to send", logx.Int("stored", len(articles)))
		return notifier.Report{}, nil
	}
	return a.dispatch(ctx, cfg, toSend, sel, log)
}

// Visualize renders the stored articles to the configured HTML path and
// returns that path.
func (a *App) Visualize(ctx context.Context) (string, error) {
	cfg := a.Config()
	log := a.log.With(logx.String("op", "visualize"))

	articles, err := a.load(ctx, cfg)
	if err != nil {
		return "", err
	}
	if len(articles) == 0 {
		log.Warn("no articles found, run fetch first", logx.String("path", cfg.Storage.Path))
		return "", ErrNoArticles
	}
	path := cfg.Output.HTML
	if path == "" {
		path = config.DefaultHTMLPath
	}
	if err := visualize.WriteFile(path, articles, a.now()); err != nil {
		return "", err
	}
	log.Info("visualization generated", logx.String("path", path), logx.Int("articles", len(articles)))
	return path, nil
}

func (a *App) source(cfg *config.Config, log logx.Logger) (article.Fetcher, error) {
	if a.fetcher != nil {
		return a.fetcher, nil
	}
	return mapSource(cfg, log)
}

func (a *App) openStore(cfg *config.Config) (storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	return storage.Open(sc, a.log.With(logx.String("comp", "storage")))
}

func (a *App) save(ctx context.Context, cfg *config.Config, articles []article.Article, log logx.Logger) error {
	st, err := a.openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Save(ctx, articles); err != nil {
		return fmt.Errorf("save articles: %w", err)
	}
	log.Info("articles saved", logx.String("path", cfg.Storage.Path), logx.Int("count", len(articles)))
	return nil
}

func (a *App) load(ctx context.Context, cfg *config.Config) ([]article.Article, error) {
	st, err := a.openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	articles, err := st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load articles: %w", err)
	}
	return articles, nil
}

func (a *App) dispatch(ctx context.Context, cfg *config.Config, articles []article.Article, sel notifier.Selection, log logx.Logger) (notifier.Report, error) {
	settings, err := mapNotifierSettings(cfg)
	if err != nil {
		return notifier.Report{}, err
	}
	style, format, err := mapRenderOptions(cfg)
	if err != nil {
		return notifier.Report{}, err
	}
	tr := a.translator
	if tr == nil {
		tc, err := mapTranslateConfig(cfg)
		if err != nil {
			return notifier.Report{}, err
		}
		tr = translate.New(tc, log.With(logx.String("comp", "translate")))
	}

	var opts []notifier.Option
	if a.factory != nil {
		opts = append(opts, notifier.WithFactory(a.factory))
	}
	d := notifier.New(settings, log, opts...)
	rep := d.Dispatch(ctx, articles, sel, render.Config{Style: style, Format: format, Translator: tr})
	log.Info("dispatch finished", logx.String("result", rep.String()), logx.Int("sent", rep.Sent()))
	return rep, nil
}
