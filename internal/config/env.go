package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values when set and non-empty.
const (
	EnvTelegramToken  = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
	EnvWebhookURL     = "WEBHOOK_URL"
	EnvWebhookSecret  = "WEBHOOK_SECRET"
	EnvDeepLAPIKey    = "DEEPL_API_KEY"
	EnvUseFree        = "USE_FREE_TRANSLATOR"
	EnvLogLevel       = "MLSUB_LOG_LEVEL"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
// With no arguments it loads ./.env.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overlays environment values onto c. A nil lookup uses the process
// environment.
func (c *Config) ApplyEnv(lookup LookupFunc) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvTelegramToken); ok {
		c.Notify.Telegram.Token = v
	}
	if v, ok := get(EnvTelegramChatID); ok {
		c.Notify.Telegram.ChatID = ID(v)
	}
	if v, ok := get(EnvWebhookURL); ok {
		c.Notify.Webhook.URL = v
	}
	if v, ok := get(EnvWebhookSecret); ok {
		c.Notify.Webhook.Secret = v
	}
	if v, ok := get(EnvDeepLAPIKey); ok {
		c.Translate.DeepLAPIKey = v
	}
	if v, ok := get(EnvUseFree); ok {
		c.Translate.UseFree = boolPtr(strings.EqualFold(v, "true"))
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Logging.Level = v
	}
}
