package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"zbxbridge/internal/audit"
	"zbxbridge/internal/config"
	"zbxbridge/internal/dedup"
	"zbxbridge/internal/eventbus"
	"zbxbridge/internal/heartbeat"
	"zbxbridge/internal/metrics"
	"zbxbridge/internal/notifier"
	"zbxbridge/internal/observability"
	"zbxbridge/internal/poller"
	"zbxbridge/internal/ratelimit"
	"zbxbridge/internal/render"
	rtsup "zbxbridge/internal/runtime/supervisor"
	"zbxbridge/internal/storage"
	kit "zbxbridge/internal/transport"
	telegram "zbxbridge/internal/transport/telegram/adapter"
	"zbxbridge/internal/zabbix"
	logx "zbxbridge/pkg/logx"
	"zbxbridge/pkg/systemd"
)

type Options struct {
	Version string
}

// App owns every long-lived component of the bridge and their lifecycle.
type App struct {
	cfgm  *config.ConfigManager
	cfgMu sync.RWMutex
	cfg   *config.Config // replaced by config reloads; read through config()

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	audit   *audit.Recorder
	metrics *metrics.Metrics
	metCh   <-chan eventbus.Event
	metStop func()

	client   *zabbix.Client
	adapter  *telegram.Adapter
	tgRender *render.Telegram
	notif    *notifier.Service
	sched    *poller.Scheduler
	obs      *observability.Server
	beat     *heartbeat.Heartbeat

	sup     *rtsup.Supervisor
	updates chan kit.Update
}

// New builds the component graph from a validated config. Nothing is
// started until Run.
func New(cfgm *config.ConfigManager, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is nil")
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	a := &App{cfgm: cfgm, cfg: cfg, bus: eventbus.New()}

	a.logs, a.log = logx.New(mapLogging(cfg), nil)
	a.log = a.log.With(logx.String("app", cfg.Notify.AppName))
	if cfgm != nil {
		cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	}

	ok := false
	defer func() {
		if !ok {
			a.closeEarly()
		}
	}()

	if needsTelegram(cfg) {
		ad, err := telegram.New(mapTelegramAdapter(cfg), a.log)
		if err != nil {
			return nil, err
		}
		a.adapter = ad
		a.logs.SetSender(ad)
		a.updates = make(chan kit.Update, 64)
	}

	if sc, enabled := mapStorage(cfg); enabled {
		st, err := storage.Open(sc, a.log)
		if err != nil {
			return nil, err
		}
		a.store = st
	}
	if a.store != nil {
		a.audit = audit.New(a.store, a.bus, a.log)
	}

	// Subscribe before anything can publish.
	a.metrics = metrics.New(a.bus)
	a.metCh, a.metStop = a.bus.Subscribe(256)

	client, err := zabbix.NewClient(mapZabbix(cfg, opts.Version), a.log, zabbix.WithObserver(a.metrics))
	if err != nil {
		return nil, err
	}
	a.client = client

	renderer, err := a.buildRenderer(cfg)
	if err != nil {
		return nil, err
	}
	a.notif = notifier.New(mapNotifier(cfg), renderer, client, a.log, a.bus)
	a.metrics.QueueLength(a.notif.Len)

	seen, err := dedup.New(cfg.Notify.DedupCacheSize)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.New(cfg.Notify.RateLimitMax, cfg.Notify.RateLimitWindow.D())
	cycle, err := mapCycle(cfg)
	if err != nil {
		return nil, err
	}
	proc, err := poller.NewProcessor(cycle, client, client, seen, limiter, a.notif, a.log, poller.WithBus(a.bus))
	if err != nil {
		return nil, err
	}
	a.sched = poller.NewScheduler(mapScheduler(cfg), proc, a.notif, a.log)

	if cfg.Observability.Enabled {
		a.obs = observability.New(mapObservability(cfg), a.metrics.Handler(), a.health, a.log)
	}
	a.beat = heartbeat.New(mapHeartbeat(cfg), a.metrics.Snapshot, a.log)

	ok = true
	return a, nil
}

// buildRenderer picks the configured sinks. Without any, incidents are
// written to the log.
func (a *App) buildRenderer(cfg *config.Config) (notifier.Renderer, error) {
	var rs []notifier.Renderer
	if cfg.Telegram.Enabled {
		tg, err := render.NewTelegram(mapTelegramRenderer(cfg), a.adapter, a.log)
		if err != nil {
			return nil, err
		}
		a.tgRender = tg
		rs = append(rs, tg)
	}
	if cfg.Webhook.Enabled {
		wh, err := render.NewWebhook(mapWebhook(cfg), nil, a.log)
		if err != nil {
			return nil, err
		}
		rs = append(rs, wh)
	}
	switch len(rs) {
	case 0:
		return render.NewLog(a.log, cfg.Notify.AppName), nil
	case 1:
		return rs[0], nil
	default:
		return render.NewMulti(rs...), nil
	}
}

func (a *App) health() error {
	if a.sched.State() == poller.StateStopped {
		return errors.New("scheduler stopped")
	}
	return nil
}

func (a *App) closeEarly() {
	if a.metStop != nil {
		a.metStop()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// Run starts every component, drives the poll loop until ctx is cancelled
// (or the single cycle of run-once mode finishes) and then shuts down in
// order. The returned error is the failed cycle's, if any.
func (a *App) Run(ctx context.Context) error {
	a.sup = rtsup.New(context.WithoutCancel(ctx),
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(false),
	)
	a.startAux()

	a.notif.Start(context.WithoutCancel(ctx))
	cfg := a.config()
	if _, err := systemd.Ready("polling " + cfg.Zabbix.URL); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	}
	a.log.Info("bridge started",
		logx.String("zabbix", cfg.Zabbix.URL),
		logx.Duration("interval", cfg.Poll.Interval.D()),
		logx.Int("max_notif", cfg.Poll.MaxNotif),
		logx.String("ack_filter", cfg.Poll.AckFilter),
		logx.Bool("once", cfg.Poll.Once),
		logx.Bool("dry_run", cfg.Notify.DryRun),
	)

	runErr := a.sched.Run(ctx)

	reason := StopOnce
	switch {
	case runErr != nil:
		reason = StopFatalError
	case ctx.Err() != nil:
		reason = StopSignal
	}
	a.stop(reason)
	return runErr
}

func (a *App) startAux() {
	if a.adapter != nil {
		updates := a.updates
		if err := a.adapter.Start(a.sup.Context(), updates); err != nil {
			a.log.Error("telegram adapter failed to start", logx.Err(err))
		}
		if a.tgRender != nil {
			a.sup.Go("telegram.callbacks", func(c context.Context) error { return a.tgRender.Run(c, updates) })
		} else {
			// Log sink only; button presses have no receiver.
			a.sup.Go0("telegram.discard", func(c context.Context) {
				for {
					select {
					case <-c.Done():
						return
					case <-updates:
					}
				}
			})
		}
	}

	a.sup.Go("metrics.consume", func(c context.Context) error {
		defer a.metStop()
		return a.metrics.Consume(c, a.metCh)
	})
	if a.audit != nil {
		a.sup.Go("audit", a.audit.Run)
	}
	if a.obs != nil {
		a.obs.Start(a.sup.Context())
	}
	a.sup.Go("heartbeat", a.beat.Run)
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.Watchdog(c, func() bool { return a.health() == nil }, a.log)
	})

	if a.cfgm != nil {
		ch := a.cfgm.Subscribe(1)
		a.sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(ch)
			for {
				select {
				case <-c.Done():
					return
				case next := <-ch:
					a.applyConfig(next)
				}
			}
		})
		a.sup.GoRestart("config.watch", a.cfgm.Watch,
			rtsup.WithRestartBackoff(time.Second, 30*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}
}

func (a *App) config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// applyConfig hot-applies what can change at runtime and reports the rest.
func (a *App) applyConfig(next *config.Config) {
	if next == nil {
		return
	}
	prev := a.config()
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.Apply(mapLogging(next))
	a.cfgMu.Lock()
	a.cfg = next
	a.cfgMu.Unlock()

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if len(restart) > 0 {
		a.log.Warn("config change needs a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TopicConfigReloaded, Data: sections})
}

func (a *App) stop(reason StopReason) {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	}

	// The scheduler has already drained the queue; this waits for
	// acknowledgements still in flight.
	a.step("notifier", 5*time.Second, a.notif.Stop)
	if a.adapter != nil {
		a.step("telegram", 2*time.Second, a.adapter.Stop)
	}
	if a.obs != nil {
		a.step("observability", time.Second, func(c context.Context) error { a.obs.Stop(c); return nil })
	}
	a.sup.Cancel()
	a.step("supervisor", 3*time.Second, a.sup.Wait)
	if a.store != nil {
		a.step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	}

	a.log.Info("stopped", logx.String("reason", string(reason)), logx.Uint64("cycles", a.sched.Cycles()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// step runs one shutdown stage with an upper bound so a stuck component
// cannot stall the rest.
func (a *App) step(name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	ctx, cancel := context.WithTimeout(context.Background(), max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errors.Newf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-ctx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			if err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}
		}()
	}
}
