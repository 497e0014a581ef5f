package app

import (
	"strings"

	"zbxbridge/internal/config"
	"zbxbridge/internal/heartbeat"
	"zbxbridge/internal/notifier"
	"zbxbridge/internal/observability"
	"zbxbridge/internal/poller"
	"zbxbridge/internal/render"
	"zbxbridge/internal/storage"
	telegram "zbxbridge/internal/transport/telegram/adapter"
	"zbxbridge/internal/zabbix"
	logx "zbxbridge/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		JSON:    l.JSON,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     l.Telegram.ChatID,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapZabbix(cfg *config.Config, version string) zabbix.Options {
	return zabbix.Options{
		URL:            cfg.Zabbix.URL,
		Token:          cfg.Zabbix.Token,
		Timeout:        cfg.Zabbix.Timeout.D(),
		ConnectTimeout: cfg.Zabbix.ConnectTimeout.D(),
		Insecure:       cfg.Zabbix.Insecure,
		UserAgent:      "zbxbridge/" + version,
	}
}

func mapCycle(cfg *config.Config) (poller.CycleConfig, error) {
	filter, err := zabbix.ParseAckFilter(cfg.Poll.AckFilter)
	if err != nil {
		return poller.CycleConfig{}, err
	}
	return poller.CycleConfig{
		Limit:         cfg.Poll.Limit,
		Concurrency:   cfg.Poll.Concurrency,
		AckFilter:     filter,
		MaxNotif:      cfg.Poll.MaxNotif,
		NotifyAcked:   cfg.Notify.NotifyAcked,
		OpenURLFormat: cfg.Zabbix.OpenURLFormat,
	}, nil
}

func mapNotifier(cfg *config.Config) notifier.Config {
	return notifier.Config{
		QueueSize:     cfg.Notify.QueueBound,
		DryRun:        cfg.Notify.DryRun,
		RenderTimeout: cfg.Notify.RenderTimeout.D(),
		AckTimeout:    cfg.Notify.AckTimeout.D(),
	}
}

func mapScheduler(cfg *config.Config) poller.SchedulerConfig {
	return poller.SchedulerConfig{Interval: cfg.Poll.Interval.D(), Once: cfg.Poll.Once}
}

// needsTelegram reports whether a bot connection is required, either for
// incident delivery or for the log sink.
func needsTelegram(cfg *config.Config) bool {
	return cfg.Telegram.Enabled || cfg.Logging.Telegram.Enabled
}

func mapTelegramAdapter(cfg *config.Config) telegram.Config {
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: cfg.Telegram.PollTimeout.D()}
}

func mapTelegramRenderer(cfg *config.Config) render.TelegramConfig {
	return render.TelegramConfig{
		ChatID:         cfg.Telegram.ChatID,
		ThreadID:       cfg.Telegram.ThreadID,
		AppName:        cfg.Notify.AppName,
		OpenLabel:      cfg.Notify.OpenLabel,
		NotifyAcked:    cfg.Notify.NotifyAcked,
		AllowedUserIDs: cfg.Telegram.AllowedUserIDs,
		RatePerSec:     cfg.Telegram.RatePerSec,
	}
}

func mapWebhook(cfg *config.Config) render.WebhookConfig {
	return render.WebhookConfig{
		URL:           cfg.Webhook.URL,
		Secret:        cfg.Webhook.Secret,
		Timeout:       cfg.Webhook.Timeout.D(),
		Attempts:      cfg.Webhook.Attempts,
		AppName:       cfg.Notify.AppName,
		Sticky:        cfg.Notify.Sticky,
		ExpireTimeout: cfg.Notify.ExpireTimeout.D(),
	}
}

// mapStorage reports false when the audit log is disabled.
func mapStorage(cfg *config.Config) (storage.Config, bool) {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{}, false
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: sc.BusyTimeout.D()}, true
}

func mapObservability(cfg *config.Config) observability.Config {
	o := cfg.Observability
	return observability.Config{
		Addr:          o.Addr,
		Token:         o.Token,
		AllowInsecure: o.AllowInsecure,
		Pprof:         o.Pprof,
		ReadTimeout:   o.ReadTimeout.D(),
		IdleTimeout:   o.IdleTimeout.D(),
	}
}

func mapHeartbeat(cfg *config.Config) heartbeat.Config {
	return heartbeat.Config{Spec: cfg.Heartbeat.Cron, Timezone: cfg.Heartbeat.Timezone}
}
