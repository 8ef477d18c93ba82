package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mlsub/internal/article"
	"mlsub/internal/config"
	"mlsub/internal/notifier"
	"mlsub/internal/notifier/channel"
	"mlsub/internal/notifier/render"
	"mlsub/internal/storage"
	"mlsub/internal/translate"
	logx "mlsub/pkg/logx"
)

type stubSource struct {
	mu       sync.Mutex
	articles []article.Article
	err      error
	queries  []article.Query
	delay    time.Duration

	active, peak int
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(_ context.Context, q article.Query) ([]article.Article, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.active++
	if s.active > s.peak {
		s.peak = s.active
	}
	s.mu.Unlock()

	time.Sleep(s.delay)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	return s.articles, s.err
}

func (s *stubSource) inFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *stubSource) maxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

func (s *stubSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

type sent struct {
	channel channel.Kind
	digest  render.Digest
}

type outbox struct {
	mu    sync.Mutex
	items []sent
}

func (o *outbox) all() []sent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]sent(nil), o.items...)
}

type outboxSender struct {
	kind channel.Kind
	box  *outbox
}

func (s outboxSender) Name() string { return string(s.kind) }

func (s outboxSender) Send(_ context.Context, d render.Digest) error {
	s.box.mu.Lock()
	s.box.items = append(s.box.items, sent{channel: s.kind, digest: d})
	s.box.mu.Unlock()
	return nil
}

func (o *outbox) factory() notifier.Factory {
	return func(t channel.Target, _ channel.Options) (channel.Sender, error) {
		if !t.Configured() {
			return nil, channel.ErrConfig
		}
		return outboxSender{kind: t.Kind(), box: o}, nil
	}
}

func intp(v int) *int { return &v }

func papers(n int) []article.Article {
	out := make([]article.Article, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, article.Article{
			Title:    "Paper " + string(rune('A'+i)),
			Authors:  []string{"Ada"},
			Summary:  "Summary.",
			Link:     "http://arxiv.org/abs/" + string(rune('a'+i)),
			Metadata: map[string]any{"source": article.SourceArxiv},
		})
	}
	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Storage.Path = filepath.Join(dir, "articles.json")
	cfg.Output.HTML = filepath.Join(dir, "articles.html")
	cfg.Notify.Channel = "all"
	cfg.Notify.Limit = intp(2)
	cfg.Notify.Telegram = config.TelegramConfig{Token: "123:abc", ChatID: "42"}
	cfg.Translate.UseFree = new(bool)
	return cfg
}

func newApp(t *testing.T, cfg *config.Config, src *stubSource, box *outbox) *App {
	t.Helper()
	a, err := New(cfg, logx.Nop(),
		WithFetcher(src),
		WithTranslator(translate.Nop{}),
		WithChannelFactory(box.factory()),
		WithClock(func() time.Time { return time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC) }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func stored(t *testing.T, cfg *config.Config) []article.Article {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "json", Path: cfg.Storage.Path}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return got
}

func TestFetchSavesAllAndNotifiesLimited(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	src := &stubSource{articles: papers(5)}
	box := &outbox{}
	a := newApp(t, cfg, src, box)

	res, err := a.Fetch(context.Background(), FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.RunID == "" || res.Fetched != 5 || res.Notified != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Report == nil || res.Report.String() != "telegram=sent" {
		t.Fatalf("report = %+v", res.Report)
	}
	if n := len(stored(t, cfg)); n != 5 {
		t.Fatalf("stored %d, want 5", n)
	}

	out := box.all()
	if len(out) != 1 || out[0].channel != channel.KindTelegram {
		t.Fatalf("sent = %+v", out)
	}
	if n := len(out[0].digest.Entries); n != 2 {
		t.Fatalf("digest entries = %d, want 2", n)
	}

	q := src.queries[0]
	if q.Search != config.DefaultArxivQuery || q.MaxResults != config.DefaultMaxResults || q.Days == nil || *q.Days != 1 {
		t.Fatalf("query = %+v", q)
	}
}

func TestFetchEmptySendsReminder(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	box := &outbox{}
	a := newApp(t, cfg, &stubSource{}, box)

	res, err := a.Fetch(context.Background(), FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Report == nil || !res.Report.Reminder {
		t.Fatalf("expected reminder report, got %+v", res.Report)
	}
	out := box.all()
	if len(out) != 1 || !out[0].digest.Empty() {
		t.Fatalf("sent = %+v", out)
	}
	if _, err := os.Stat(cfg.Storage.Path); !os.IsNotExist(err) {
		t.Fatalf("empty result must not be stored: %v", err)
	}
}

func TestFetchWithoutNotification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		articles int
		skip     bool
		channel  string
		limit    *int
	}{
		{name: "skip flag", articles: 3, skip: true, channel: "all", limit: intp(5)},
		{name: "skip flag suppresses reminder", articles: 0, skip: true, channel: "all", limit: intp(5)},
		{name: "no channel", articles: 3, channel: "", limit: intp(5)},
		{name: "no channel no reminder", articles: 0, channel: "none", limit: intp(5)},
		{name: "limit zero", articles: 3, channel: "all", limit: intp(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			cfg.Notify.Channel = tt.channel
			cfg.Notify.Limit = tt.limit
			box := &outbox{}
			a := newApp(t, cfg, &stubSource{articles: papers(tt.articles)}, box)

			res, err := a.Fetch(context.Background(), FetchOptions{SkipNotify: tt.skip})
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if res.Report != nil || len(box.all()) != 0 {
				t.Fatalf("expected no dispatch, got report %+v sent %+v", res.Report, box.all())
			}
			if n := len(stored(t, cfg)); n != tt.articles {
				t.Fatalf("stored %d, want %d", n, tt.articles)
			}
		})
	}
}

func TestFetchUnlimited(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Notify.Limit = nil
	box := &outbox{}
	a := newApp(t, cfg, &stubSource{articles: papers(7)}, box)

	res, err := a.Fetch(context.Background(), FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Notified != 7 || len(box.all()[0].digest.Entries) != 7 {
		t.Fatalf("notified = %d", res.Notified)
	}
}

func TestFetchSourceError(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	box := &outbox{}
	a := newApp(t, cfg, &stubSource{err: errors.New("arxiv down")}, box)

	_, err := a.Fetch(context.Background(), FetchOptions{})
	if err == nil || !strings.Contains(err.Error(), "arxiv down") {
		t.Fatalf("err = %v", err)
	}
	if len(box.all()) != 0 {
		t.Fatal("a failed fetch must not notify")
	}
}

func TestFetchThenNotifyStoredDoesNotDoubleSend(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	box := &outbox{}
	a := newApp(t, cfg, &stubSource{articles: papers(3)}, box)

	if _, err := a.Fetch(context.Background(), FetchOptions{SkipNotify: true}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	rep, err := a.Notify(context.Background())
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if rep.Sent() != 1 || len(box.all()) != 1 {
		t.Fatalf("sent %d messages, want exactly one", len(box.all()))
	}
	if n := len(box.all()[0].digest.Entries); n != 2 {
		t.Fatalf("entries = %d, want limit 2", n)
	}
}

func TestNotifyErrors(t *testing.T) {
	t.Parallel()

	t.Run("no channel", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t)
		cfg.Notify.Channel = ""
		_, err := newApp(t, cfg, &stubSource{}, &outbox{}).Notify(context.Background())
		if !errors.Is(err, ErrNoChannel) {
			t.Fatalf("err = %v", err)
		}
	})
	t.Run("nothing stored", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t)
		box := &outbox{}
		_, err := newApp(t, cfg, &stubSource{}, box).Notify(context.Background())
		if !errors.Is(err, ErrNoArticles) {
			t.Fatalf("err = %v", err)
		}
		if len(box.all()) != 0 {
			t.Fatal("no reminder expected from notify")
		}
	})
}

func TestNotifyExplicitUnconfiguredChannel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Notify.Channel = "webhook"
	box := &outbox{}
	a := newApp(t, cfg, &stubSource{articles: papers(1)}, box)
	if _, err := a.Fetch(context.Background(), FetchOptions{SkipNotify: true}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	rep, err := a.Notify(context.Background())
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if rep.String() != "webhook=skipped" {
		t.Fatalf("report = %s", rep.String())
	}
}

func TestVisualize(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a := newApp(t, cfg, &stubSource{articles: papers(2)}, &outbox{})

	if _, err := a.Visualize(context.Background()); !errors.Is(err, ErrNoArticles) {
		t.Fatalf("err = %v, want ErrNoArticles", err)
	}
	if _, err := a.Fetch(context.Background(), FetchOptions{SkipNotify: true}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	path, err := a.Visualize(context.Background())
	if err != nil {
		t.Fatalf("Visualize: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	if !strings.Contains(string(b), "Paper A") || !strings.Contains(string(b), "Paper B") {
		t.Fatalf("page missing titles:\n%s", b)
	}
}

func TestSQLiteStorage(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Storage = config.StorageConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "articles.db")}
	box := &outbox{}
	a := newApp(t, cfg, &stubSource{articles: papers(3)}, box)

	if _, err := a.Fetch(context.Background(), FetchOptions{SkipNotify: true}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	rep, err := a.Notify(context.Background())
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if rep.Articles != 2 {
		t.Fatalf("articles = %d", rep.Articles)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{name: "source", mutate: func(c *config.Config) { c.Source.Name = "reddit" }},
		{name: "channel", mutate: func(c *config.Config) { c.Notify.Channel = "email" }},
		{name: "style", mutate: func(c *config.Config) { c.Notify.Style = "verbose" }},
		{name: "timeout", mutate: func(c *config.Config) { c.Notify.Timeout = "soon" }},
		{name: "limit", mutate: func(c *config.Config) { c.Notify.Limit = intp(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			tt.mutate(cfg)
			if _, err := New(cfg, logx.Nop()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := New(nil, logx.Nop()); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestSetConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a := newApp(t, cfg, &stubSource{}, &outbox{})

	bad := testConfig(t)
	bad.Source.MaxResults = 0
	if err := a.SetConfig(bad); err == nil {
		t.Fatal("expected error")
	}
	if a.Config() != cfg {
		t.Fatal("rejected config must not replace the active one")
	}

	good := testConfig(t)
	good.Notify.Style = "compact"
	if err := a.SetConfig(good); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if a.Config() != good {
		t.Fatal("config not replaced")
	}
}

func TestDaemonRunsScheduledFetch(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Schedule = config.ScheduleConfig{Spec: "1s", RunOnStart: true}
	src := &stubSource{articles: papers(1)}
	box := &outbox{}
	a := newApp(t, cfg, src, box)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Daemon(ctx, nil) }()

	deadline := time.Now().Add(5 * time.Second)
	for src.calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Daemon: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	if src.calls() < 2 {
		t.Fatalf("fetch calls = %d, want >= 2", src.calls())
	}
	if len(box.all()) == 0 {
		t.Fatal("scheduled run did not notify")
	}
}

func TestDaemonRunOnStartDoesNotOverlapTicks(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Schedule = config.ScheduleConfig{Spec: "1s", RunOnStart: true}
	src := &stubSource{articles: papers(1), delay: 2500 * time.Millisecond}
	box := &outbox{}
	a := newApp(t, cfg, src, box)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Daemon(ctx, nil) }()

	time.Sleep(3 * time.Second)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Daemon: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	if n := src.maxConcurrent(); n != 1 {
		t.Fatalf("max concurrent fetches = %d, want 1", n)
	}
	if n := src.inFlight(); n != 0 {
		t.Fatalf("Daemon returned with %d fetches in progress", n)
	}
	if len(box.all()) > src.calls() {
		t.Fatalf("notifications = %d exceed fetches = %d", len(box.all()), src.calls())
	}
}

func TestDaemonRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Schedule = config.ScheduleConfig{Spec: "whenever"}
	a := newApp(t, cfg, &stubSource{}, &outbox{})
	if err := a.Daemon(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
}
