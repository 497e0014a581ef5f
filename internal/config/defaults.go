package config

import "time"

const (
	DefaultLimit           = 20
	DefaultConcurrency     = 4
	DefaultAckFilter       = "unacked"
	DefaultMaxNotif        = 5
	DefaultQueueBound      = 64
	DefaultDedupCacheSize  = 256
	DefaultRateLimitMax    = 3
	DefaultRateLimitWindow = 5 * time.Second
	DefaultPollInterval    = 30 * time.Second
	DefaultHTTPTimeout     = 10 * time.Second
	DefaultConnectTimeout  = 5 * time.Second
	DefaultAppName         = "Alerting"
	DefaultOpenLabel       = "Open"
	DefaultObservability   = "127.0.0.1:9464"
)

// ApplyDefaults fills every zero-valued setting that has a default.
func ApplyDefaults(c *Config) {
	setInt := func(p *int, v int) {
		if *p == 0 {
			*p = v
		}
	}
	setDur := func(p *Duration, v time.Duration) {
		if *p == 0 {
			*p = Duration(v)
		}
	}
	setStr := func(p *string, v string) {
		if *p == "" {
			*p = v
		}
	}

	setDur(&c.Zabbix.Timeout, DefaultHTTPTimeout)
	setDur(&c.Zabbix.ConnectTimeout, DefaultConnectTimeout)

	setDur(&c.Poll.Interval, DefaultPollInterval)
	setInt(&c.Poll.Limit, DefaultLimit)
	setInt(&c.Poll.Concurrency, DefaultConcurrency)
	setStr(&c.Poll.AckFilter, DefaultAckFilter)
	setInt(&c.Poll.MaxNotif, DefaultMaxNotif)

	setStr(&c.Notify.AppName, DefaultAppName)
	setStr(&c.Notify.OpenLabel, DefaultOpenLabel)
	setInt(&c.Notify.QueueBound, DefaultQueueBound)
	setInt(&c.Notify.DedupCacheSize, DefaultDedupCacheSize)
	setInt(&c.Notify.RateLimitMax, DefaultRateLimitMax)
	setDur(&c.Notify.RateLimitWindow, DefaultRateLimitWindow)
	setDur(&c.Notify.RenderTimeout, 30*time.Second)
	setDur(&c.Notify.AckTimeout, 30*time.Second)

	setDur(&c.Telegram.PollTimeout, 10*time.Second)
	setInt(&c.Telegram.RatePerSec, 1)

	setDur(&c.Webhook.Timeout, DefaultHTTPTimeout)
	setInt(&c.Webhook.Attempts, 2)

	setStr(&c.Logging.Level, "info")
	if c.Logging.File.Enabled {
		setInt(&c.Logging.File.MaxSizeMB, 50)
		setInt(&c.Logging.File.MaxBackups, 5)
		setInt(&c.Logging.File.MaxAgeDays, 14)
	}
	setStr(&c.Logging.Telegram.MinLevel, "error")
	setInt(&c.Logging.Telegram.RatePerSec, 1)
	if c.Logging.Telegram.ChatID == 0 {
		c.Logging.Telegram.ChatID = c.Telegram.ChatID
	}

	if c.Storage != nil && (c.Storage.Driver == "sqlite" || c.Storage.Driver == "sqlite3") {
		setDur(&c.Storage.BusyTimeout, time.Second)
	}

	setStr(&c.Observability.Addr, DefaultObservability)
	setDur(&c.Observability.ReadTimeout, 5*time.Second)
	setDur(&c.Observability.IdleTimeout, 60*time.Second)
}
