package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Defaults mirror the command-line defaults.
const (
	DefaultSource     = "arxiv"
	DefaultArxivQuery = "cat:cs.LG"
	DefaultMaxResults = 50
	DefaultDays       = 1
	DefaultLimit      = 5
	DefaultJSONPath   = "output/articles.json"
	DefaultHTMLPath   = "output/articles.html"
	DefaultSchedule   = "0 9 * * *"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// Defaults returns a fully populated configuration.
func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Source: SourceConfig{
			Name:       DefaultSource,
			Query:      DefaultArxivQuery,
			MaxResults: DefaultMaxResults,
			Days:       intPtr(DefaultDays),
			Timeout:    "30s",
		},
		Storage: StorageConfig{Driver: "json", Path: DefaultJSONPath},
		Output:  OutputConfig{HTML: DefaultHTMLPath},
		Notify: NotifyConfig{
			Style:   "detailed",
			Format:  "text",
			Limit:   intPtr(DefaultLimit),
			Timeout: "15s",
		},
		Translate: TranslateConfig{TargetLang: "ZH", UseFree: boolPtr(true), Timeout: "10s"},
		Schedule:  ScheduleConfig{Spec: DefaultSchedule},
	}
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate checks values that would otherwise fail deep inside a run.
// Channel credentials are not checked here: a misconfigured channel is
// reported and skipped at send time.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if !oneOf(c.Source.Name, "arxiv", "hn") {
		add("source.name: unknown source %q (use arxiv or hn)", c.Source.Name)
	}
	if c.Source.MaxResults <= 0 {
		add("source.max_results: must be > 0")
	}
	if c.Source.Days != nil && *c.Source.Days < 0 {
		add("source.days: must be >= 0")
	}
	if c.Source.HNConcurrency < 0 || c.Source.HNRatePerSec < 0 {
		add("source: hn_concurrency and hn_rate_per_sec must be >= 0")
	}
	if !oneOf(c.Storage.Driver, "json", "file", "sqlite", "sqlite3") {
		add("storage.driver: unknown driver %q (use json or sqlite)", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		add("storage.path: required")
	}
	if !oneOf(c.Notify.Channel, "", "none", "telegram", "webhook", "all") {
		add("notify.channel: unknown channel %q", c.Notify.Channel)
	}
	if !oneOf(c.Notify.Style, "", "detailed", "compact") {
		add("notify.style: unknown style %q", c.Notify.Style)
	}
	if !oneOf(c.Notify.Format, "", "text", "markdown") {
		add("notify.format: unknown format %q", c.Notify.Format)
	}
	if c.Notify.Limit != nil && *c.Notify.Limit < 0 {
		add("notify.limit: must be >= 0")
	}
	for path, raw := range map[string]string{
		"source.timeout":       c.Source.Timeout,
		"storage.busy_timeout": c.Storage.BusyTimeout,
		"notify.timeout":       c.Notify.Timeout,
		"translate.timeout":    c.Translate.Timeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if tz := strings.TrimSpace(c.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("schedule.timezone: %w", err)
		}
	}
	return errors.Join(errs...)
}
