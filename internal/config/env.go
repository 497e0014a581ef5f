package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set are kept. A missing file is not an error when
// optional is set.
func LoadEnvFile(path string, optional bool) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "env file %s", path)
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "env file %s", path)
	}
	return nil
}

// ApplyEnv overrides c with the recognised environment variables.
func ApplyEnv(c *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}
	str := func(k string, dst *string) {
		if v, ok := get(k); ok && v != "" {
			*dst = v
		}
	}
	num := func(k string, dst *int) error {
		v, ok := get(k)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Newf("%s: invalid integer %q", k, v)
		}
		*dst = n
		return nil
	}
	dur := func(k string, dst *Duration) error {
		v, ok := get(k)
		if !ok || v == "" {
			return nil
		}
		d, err := parseEnvDuration(k, v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
	flag := func(k string, dst *bool) error {
		v, ok := get(k)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Newf("%s: invalid boolean %q", k, v)
		}
		*dst = b
		return nil
	}

	str("ZBX_URL", &c.Zabbix.URL)
	str("ZBX_TOKEN", &c.Zabbix.Token)
	str("ZBX_OPEN_URL_FMT", &c.Zabbix.OpenURLFormat)
	str("ACK_FILTER", &c.Poll.AckFilter)
	str("NOTIFY_APPNAME", &c.Notify.AppName)
	str("TELEGRAM_TOKEN", &c.Telegram.Token)
	str("WEBHOOK_URL", &c.Webhook.URL)
	if c.Poll.AckFilter != "" {
		c.Poll.AckFilter = strings.ToLower(c.Poll.AckFilter)
	}

	errs := []error{
		num("LIMIT", &c.Poll.Limit),
		num("CONCURRENCY", &c.Poll.Concurrency),
		num("MAX_NOTIF", &c.Poll.MaxNotif),
		num("NOTIFY_QUEUE_BOUND", &c.Notify.QueueBound),
		num("DEDUPE_CACHE_SIZE", &c.Notify.DedupCacheSize),
		num("RATE_LIMIT_MAX", &c.Notify.RateLimitMax),
		dur("RATE_LIMIT_WINDOW", &c.Notify.RateLimitWindow),
		dur("POLL_INTERVAL", &c.Poll.Interval),
		flag("NOTIFY_ACKED", &c.Notify.NotifyAcked),
	}
	if v, ok := get("TELEGRAM_CHAT_ID"); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, errors.Newf("TELEGRAM_CHAT_ID: invalid integer %q", v))
		} else {
			c.Telegram.ChatID = id
		}
	}
	// A token and chat from the environment switch the sink on.
	if c.Telegram.Token != "" && c.Telegram.ChatID != 0 {
		if _, ok := get("TELEGRAM_TOKEN"); ok {
			c.Telegram.Enabled = true
		}
	}
	if _, ok := get("WEBHOOK_URL"); ok && c.Webhook.URL != "" {
		c.Webhook.Enabled = true
	}
	return errors.Join(errs...)
}
