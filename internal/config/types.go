package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("30s", "5m"); see Duration.
type Config struct {
	Zabbix        ZabbixConfig        `json:"zabbix"`
	Poll          PollConfig          `json:"poll"`
	Notify        NotifyConfig        `json:"notify"`
	Telegram      TelegramConfig      `json:"telegram"`
	Webhook       WebhookConfig       `json:"webhook"`
	Logging       LoggingConfig       `json:"logging"`
	Storage       *StorageConfig      `json:"storage,omitempty"`
	Observability ObservabilityConfig `json:"observability"`
	Heartbeat     HeartbeatConfig     `json:"heartbeat"`
}

type ZabbixConfig struct {
	URL   string `json:"url" validate:"required,url"`
	Token string `json:"token" validate:"required"`
	// OpenURLFormat is the incident link template; "{eventid}" is replaced.
	OpenURLFormat string `json:"open_url_fmt,omitempty"`
	// Insecure allows http:// and skips TLS verification.
	Insecure       bool     `json:"insecure,omitempty"`
	Timeout        Duration `json:"timeout,omitempty" validate:"gt=0"`
	ConnectTimeout Duration `json:"connect_timeout,omitempty" validate:"gt=0"`
}

type PollConfig struct {
	Interval    Duration `json:"interval,omitempty" validate:"gt=0"`
	Limit       int      `json:"limit,omitempty" validate:"gte=1"`
	Concurrency int      `json:"concurrency,omitempty" validate:"gte=1"`
	AckFilter   string   `json:"ack_filter,omitempty" validate:"oneof=acked unacked all"`
	MaxNotif    int      `json:"max_notif,omitempty" validate:"gte=1,lte=100"`
	// Once runs a single cycle and exits.
	Once bool `json:"once,omitempty"`
}

type NotifyConfig struct {
	AppName         string   `json:"appname,omitempty"`
	OpenLabel       string   `json:"open_label,omitempty"`
	NotifyAcked     bool     `json:"notify_acked,omitempty"`
	QueueBound      int      `json:"queue_bound,omitempty" validate:"gte=1"`
	DedupCacheSize  int      `json:"dedup_cache_size,omitempty" validate:"gte=1"`
	RateLimitMax    int      `json:"rate_limit_max,omitempty" validate:"gte=1"`
	RateLimitWindow Duration `json:"rate_limit_window,omitempty" validate:"gt=0"`
	DryRun          bool     `json:"dry_run,omitempty"`
	// Sticky and ExpireTimeout are forwarded to sinks that support them.
	Sticky        bool     `json:"sticky,omitempty"`
	ExpireTimeout Duration `json:"expire_timeout,omitempty"`
	RenderTimeout Duration `json:"render_timeout,omitempty"`
	AckTimeout    Duration `json:"ack_timeout,omitempty"`
}

type TelegramConfig struct {
	Enabled        bool     `json:"enabled"`
	Token          string   `json:"token,omitempty" validate:"required_if=Enabled true"`
	ChatID         int64    `json:"chat_id,omitempty" validate:"required_if=Enabled true"`
	ThreadID       int      `json:"thread_id,omitempty"`
	AllowedUserIDs []int64  `json:"allowed_user_ids,omitempty"`
	PollTimeout    Duration `json:"poll_timeout,omitempty"`
	RatePerSec     int      `json:"rate_per_sec,omitempty" validate:"gte=0"`
}

type WebhookConfig struct {
	Enabled  bool     `json:"enabled"`
	URL      string   `json:"url,omitempty" validate:"omitempty,url"`
	Secret   string   `json:"secret,omitempty"`
	Timeout  Duration `json:"timeout,omitempty"`
	Attempts int      `json:"attempts,omitempty" validate:"gte=0,lte=10"`
}

type LoggingConfig struct {
	Level    string          `json:"level,omitempty"`
	Console  bool            `json:"console"`
	JSON     bool            `json:"json,omitempty"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path,omitempty" validate:"required_if=Enabled true"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" validate:"gte=0"`
	MaxBackups int    `json:"max_backups,omitempty" validate:"gte=0"`
	MaxAgeDays int    `json:"max_age_days,omitempty" validate:"gte=0"`
	Compress   bool   `json:"compress,omitempty"`
}

type LoggingTelegram struct {
	Enabled bool `json:"enabled"`
	// ChatID defaults to telegram.chat_id.
	ChatID     int64  `json:"chat_id,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
}

// StorageConfig enables the audit log of deliveries and acknowledgements.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./zbxbridge.db" }
type StorageConfig struct {
	Driver      string   `json:"driver" validate:"oneof=none file sqlite sqlite3"`
	Path        string   `json:"path,omitempty"`
	BusyTimeout Duration `json:"busy_timeout,omitempty"`
}

// ObservabilityConfig controls the optional /metrics and /debug/pprof/
// HTTP server. Prefer a loopback address; a non-loopback bind requires a
// token or allow_insecure.
type ObservabilityConfig struct {
	Enabled       bool     `json:"enabled"`
	Addr          string   `json:"addr,omitempty"`
	Token         string   `json:"token,omitempty"`
	AllowInsecure bool     `json:"allow_insecure,omitempty"`
	Pprof         bool     `json:"pprof,omitempty"`
	ReadTimeout   Duration `json:"read_timeout,omitempty"`
	IdleTimeout   Duration `json:"idle_timeout,omitempty"`
}

type HeartbeatConfig struct {
	// Cron is a standard 5-field spec (or a descriptor such as "@hourly").
	// Empty disables the heartbeat.
	Cron     string `json:"cron,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}
