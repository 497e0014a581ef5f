package config

import (
	"reflect"
	"sort"
	"strings"

	logx "zbxbridge/pkg/logx"
)

// hotSections are applied without a restart.
var hotSections = map[string]bool{"logging": true}

// SummarizeConfigChange returns the changed sections, safe log attrs (never
// secrets) and the subset of changed sections that only take effect after a
// restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	// Zabbix (never log token)
	oz, nz := oldCfg.Zabbix, newCfg.Zabbix
	if oz.URL != nz.URL || oz.OpenURLFormat != nz.OpenURLFormat || oz.Insecure != nz.Insecure ||
		oz.Timeout != nz.Timeout || oz.ConnectTimeout != nz.ConnectTimeout || oz.Token != nz.Token {
		changed = append(changed, "zabbix")
		attrs = append(attrs,
			logx.String("zabbix.url", nz.URL),
			logx.Bool("zabbix.insecure", nz.Insecure),
			logx.Bool("zabbix.token_changed", oz.Token != nz.Token),
		)
	}

	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.Duration("poll.interval", newCfg.Poll.Interval.D()),
			logx.Int("poll.limit", newCfg.Poll.Limit),
			logx.Int("poll.max_notif", newCfg.Poll.MaxNotif),
			logx.String("poll.ack_filter", newCfg.Poll.AckFilter),
		)
	}

	if oldCfg.Notify != newCfg.Notify {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.Int("notify.queue_bound", newCfg.Notify.QueueBound),
			logx.Int("notify.rate_limit_max", newCfg.Notify.RateLimitMax),
			logx.Duration("notify.rate_limit_window", newCfg.Notify.RateLimitWindow.D()),
			logx.Bool("notify.dry_run", newCfg.Notify.DryRun),
		)
	}

	// Telegram (never log token)
	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Enabled != nt.Enabled || ot.Token != nt.Token || ot.ChatID != nt.ChatID || ot.ThreadID != nt.ThreadID ||
		ot.PollTimeout != nt.PollTimeout || ot.RatePerSec != nt.RatePerSec ||
		!reflect.DeepEqual(ot.AllowedUserIDs, nt.AllowedUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", nt.Enabled),
			logx.Int("telegram.allowed_users", len(nt.AllowedUserIDs)),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		)
	}

	// Webhook (never log secret)
	if oldCfg.Webhook != newCfg.Webhook {
		changed = append(changed, "webhook")
		attrs = append(attrs,
			logx.Bool("webhook.enabled", newCfg.Webhook.Enabled),
			logx.Bool("webhook.signed", strings.TrimSpace(newCfg.Webhook.Secret) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Nil means disabled.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nS.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
		)
	}

	// Observability (never log token)
	if oldCfg.Observability != newCfg.Observability {
		changed = append(changed, "observability")
		attrs = append(attrs,
			logx.Bool("observability.enabled", newCfg.Observability.Enabled),
			logx.String("observability.addr", newCfg.Observability.Addr),
			logx.Bool("observability.token_set", newCfg.Observability.Token != ""),
		)
	}

	if oldCfg.Heartbeat != newCfg.Heartbeat {
		changed = append(changed, "heartbeat")
		attrs = append(attrs, logx.String("heartbeat.cron", newCfg.Heartbeat.Cron))
	}

	sort.Strings(changed)
	restart := make([]string, 0, len(changed))
	for _, s := range changed {
		if !hotSections[s] {
			restart = append(restart, s)
		}
	}
	return changed, attrs, restart
}
