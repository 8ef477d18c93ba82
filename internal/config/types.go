package config

import (
	"bytes"
	"encoding/json"
)

// Config is the whole runtime configuration. Every section may be omitted;
// omitted fields keep the values from Defaults.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Source    SourceConfig    `json:"source"`
	Storage   StorageConfig   `json:"storage"`
	Output    OutputConfig    `json:"output"`
	Notify    NotifyConfig    `json:"notify"`
	Translate TranslateConfig `json:"translate"`
	Schedule  ScheduleConfig  `json:"schedule"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SourceConfig selects where articles come from.
//
// Example:
//
//	"source": { "name": "arxiv", "query": "cat:cs.LG", "max_results": 50, "days": 1 }
type SourceConfig struct {
	Name       string `json:"name"`            // "arxiv" | "hn"
	Query      string `json:"query,omitempty"` // arXiv search_query
	MaxResults int    `json:"max_results"`
	// Days keeps only articles published in the last N days (arXiv only).
	// Omit it to disable the filter.
	Days *int `json:"days,omitempty"`

	// Timeout is a Go duration string bounding each HTTP request.
	Timeout string `json:"timeout,omitempty"`

	ArxivURL string `json:"arxiv_url,omitempty"`
	HNURL    string `json:"hn_url,omitempty"`
	// HN item fetch fan-out and request rate.
	HNConcurrency int `json:"hn_concurrency,omitempty"`
	HNRatePerSec  int `json:"hn_rate_per_sec,omitempty"`
}

// StorageConfig controls where fetched articles are kept between runs.
//
// Example:
//
//	"storage": { "driver": "json", "path": "./output/articles.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type OutputConfig struct {
	// HTML is the path of the generated page.
	HTML string `json:"html"`
}

type NotifyConfig struct {
	// Channel is "", "telegram", "webhook" or "all". Empty disables
	// notifications.
	Channel string `json:"channel"`
	Style   string `json:"style"`
	Format  string `json:"format"`
	// Limit caps how many articles are sent. Omit it for no cap.
	Limit *int `json:"limit,omitempty"`
	// Timeout is a Go duration string bounding each channel send.
	Timeout string `json:"timeout,omitempty"`

	Telegram TelegramConfig `json:"telegram"`
	Webhook  WebhookConfig  `json:"webhook"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID ID     `json:"chat_id"`
	APIURL string `json:"api_url,omitempty"`
}

type WebhookConfig struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

type TranslateConfig struct {
	DeepLAPIKey  string `json:"deepl_api_key,omitempty"`
	DeepLAPIURL  string `json:"deepl_api_url,omitempty"`
	GoogleAPIURL string `json:"google_api_url,omitempty"`
	TargetLang   string `json:"target_lang,omitempty"`
	// UseFree enables the keyless translator when no DeepL key is set.
	UseFree *bool  `json:"use_free,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// ScheduleConfig drives daemon mode.
type ScheduleConfig struct {
	// Spec is a cron expression, a Go duration or HH:MM interval.
	Spec       string `json:"spec"`
	Timezone   string `json:"timezone,omitempty"`
	RunOnStart bool   `json:"run_on_start,omitempty"`
}

// ID is an identifier written either as a string or as a bare number, as
// chat ids often are in YAML.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}
