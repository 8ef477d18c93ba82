package main

import (
	"strings"

	"github.com/spf13/pflag"

	"mlsub/internal/config"
)

// runFlags are the command-line overrides shared by every subcommand.
type runFlags struct {
	configPath string
	logLevel   string

	source       string
	days         int
	maxResults   int
	limit        int
	notifier     string
	webhookURL   string
	notifyStyle  string
	notifyFormat string
	jsonOutput   string
	output       string
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "path to a JSON or YAML config file")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	fs.StringVar(&f.source, "source", config.DefaultSource, "content source: arxiv or hn")
	fs.IntVar(&f.days, "days", config.DefaultDays, "only keep articles from the last N days (arxiv only, negative disables)")
	fs.IntVar(&f.maxResults, "max-results", config.DefaultMaxResults, "maximum number of articles to fetch before filtering")
	fs.IntVar(&f.limit, "limit", config.DefaultLimit, "maximum number of articles to notify (0 sends nothing, negative means no cap)")
	fs.StringVar(&f.notifier, "notifier", "", "notification channel: telegram, webhook or all")
	fs.StringVar(&f.webhookURL, "webhook-url", "", "webhook URL (overrides WEBHOOK_URL)")
	fs.StringVar(&f.notifyStyle, "notify-style", "detailed", "notification verbosity: detailed or compact")
	fs.StringVar(&f.notifyFormat, "notify-format", "text", "message format: text or markdown")
	fs.StringVar(&f.jsonOutput, "json-output", config.DefaultJSONPath, "file the fetched articles are stored in")
	fs.StringVar(&f.output, "output", config.DefaultHTMLPath, "file the visualization is written to")
}

// apply copies every flag the user set onto cfg. Unset flags leave the file
// and environment values alone.
func (f *runFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	set := func(name string) bool { return fs.Changed(name) }

	if set("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if set("source") {
		cfg.Source.Name = strings.ToLower(strings.TrimSpace(f.source))
	}
	if set("days") {
		if f.days < 0 {
			cfg.Source.Days = nil
		} else {
			d := f.days
			cfg.Source.Days = &d
		}
	}
	if set("max-results") {
		cfg.Source.MaxResults = f.maxResults
	}
	if set("limit") {
		if f.limit < 0 {
			cfg.Notify.Limit = nil
		} else {
			l := f.limit
			cfg.Notify.Limit = &l
		}
	}
	if set("notifier") {
		cfg.Notify.Channel = f.notifier
	}
	if set("webhook-url") {
		cfg.Notify.Webhook.URL = f.webhookURL
	}
	if set("notify-style") {
		cfg.Notify.Style = f.notifyStyle
	}
	if set("notify-format") {
		cfg.Notify.Format = f.notifyFormat
	}
	if set("json-output") {
		cfg.Storage.Path = f.jsonOutput
	}
	if set("output") {
		cfg.Output.HTML = f.output
	}
}
