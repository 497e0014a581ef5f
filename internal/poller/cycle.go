package poller

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"zbxbridge/internal/dedup"
	"zbxbridge/internal/eventbus"
	"zbxbridge/internal/notifier"
	"zbxbridge/internal/zabbix"
	logx "zbxbridge/pkg/logx"
)

// Fetcher lists active incidents.
type Fetcher interface {
	ActiveIncidents(ctx context.Context, limit int, filter zabbix.AckFilter) ([]zabbix.Problem, error)
}

// Resolver looks up host metadata, one slot per event id.
type Resolver interface {
	ResolveHosts(ctx context.Context, ids []string, concurrency int) []*zabbix.HostMeta
}

// Sink accepts notification items without blocking.
type Sink interface {
	TryEnqueue(it notifier.Item) error
}

// Limiter is the admission gate applied after dedup.
type Limiter interface {
	TryAcquire(now time.Time) bool
}

// CycleConfig is the per-cycle policy.
type CycleConfig struct {
	Limit       int
	Concurrency int
	AckFilter   zabbix.AckFilter
	MaxNotif    int
	NotifyAcked bool
	// OpenURLFormat contains "{eventid}"; empty disables links.
	OpenURLFormat string
}

// CycleStats summarizes one cycle. It is published on the event bus.
type CycleStats struct {
	Seq      uint64        `json:"seq"`
	Fetched  int           `json:"fetched"`
	Skipped  int           `json:"skipped_acked"`
	Deduped  int           `json:"deduped"`
	Limited  int           `json:"limited"`
	Dropped  int           `json:"dropped"`
	Admitted int           `json:"admitted"`
	Stopped  bool          `json:"stopped,omitempty"`
	Took     time.Duration `json:"took"`
	Error    string        `json:"error,omitempty"`
}

// Processor runs one fetch/rank/admit pass. Dedup and limiter state belong
// to the caller and persist across cycles; Processor must not be used from
// more than one goroutine.
type Processor struct {
	cfg      CycleConfig
	fetcher  Fetcher
	resolver Resolver
	seen     *dedup.Cache
	limiter  Limiter
	sink     Sink
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time
	seq      uint64
}

type ProcessorOption func(*Processor)

// WithClock overrides time.Now for latency and rate limiting.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

func WithBus(bus eventbus.Bus) ProcessorOption { return func(p *Processor) { p.bus = bus } }

func NewProcessor(cfg CycleConfig, fetcher Fetcher, resolver Resolver, seen *dedup.Cache, limiter Limiter, sink Sink, log logx.Logger, opts ...ProcessorOption) (*Processor, error) {
	if fetcher == nil || resolver == nil || seen == nil || limiter == nil || sink == nil {
		return nil, errors.New("poller: fetcher, resolver, dedup cache, limiter and sink are required")
	}
	if cfg.MaxNotif < 1 {
		return nil, errors.Newf("poller: max_notif must be >= 1, got %d", cfg.MaxNotif)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Processor{
		cfg:      cfg,
		fetcher:  fetcher,
		resolver: resolver,
		seen:     seen,
		limiter:  limiter,
		sink:     sink,
		log:      log.With(logx.String("comp", "cycle")),
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type pair struct {
	problem zabbix.Problem
	host    *zabbix.HostMeta
}

// RunCycle performs one cycle. Only a fetch failure is returned; everything
// after the fetch is handled per item.
func (p *Processor) RunCycle(ctx context.Context) error {
	p.seq++
	started := p.now()
	stats := CycleStats{Seq: p.seq}
	defer func() {
		stats.Took = p.now().Sub(started)
		p.publish(stats)
	}()

	problems, err := p.fetcher.ActiveIncidents(ctx, p.cfg.Limit, p.cfg.AckFilter)
	if err != nil {
		stats.Error = err.Error()
		return err
	}
	stats.Fetched = len(problems)
	if len(problems) == 0 {
		p.log.Debug("no active incidents")
		return nil
	}

	ids := make([]string, len(problems))
	for i, pr := range problems {
		ids[i] = pr.EventID
	}
	hosts := p.resolver.ResolveHosts(ctx, ids, p.cfg.Concurrency)

	pairs := make([]pair, len(problems))
	for i, pr := range problems {
		var h *zabbix.HostMeta
		if i < len(hosts) {
			h = hosts[i]
		}
		pairs[i] = pair{problem: pr, host: h}
	}
	rank(pairs)
	if len(pairs) > p.cfg.MaxNotif {
		pairs = pairs[:p.cfg.MaxNotif]
	}

	for _, pp := range pairs {
		pr := pp.problem
		log := p.log.With(logx.String("eventid", pr.EventID), logx.String("severity", pr.Severity.String()))

		if pr.Acknowledged && !p.cfg.NotifyAcked {
			stats.Skipped++
			continue
		}

		key := dedup.Key{EventID: pr.EventID, LastChange: pr.LastChange}
		if p.seen.Contains(key) {
			stats.Deduped++
			log.Debug("already notified", logx.Int64("lastchange", pr.LastChange))
			continue
		}
		p.seen.Insert(key)

		now := p.now()
		if !p.limiter.TryAcquire(now) {
			stats.Limited++
			log.Warn("rate limit reached; notification skipped")
			continue
		}

		it := notifier.Item{Problem: pr, Host: pp.host, OpenURL: OpenURL(p.cfg.OpenURLFormat, pr.EventID)}
		it.Latency, it.HasLatency = latency(pr.Clock, now)

		switch err := p.sink.TryEnqueue(it); {
		case err == nil:
			stats.Admitted++
		case errors.Is(err, notifier.ErrQueueFull):
			stats.Dropped++
			log.Warn("notification queue full; dropping", logx.String("host", it.HostName()))
		case errors.Is(err, notifier.ErrStopped):
			stats.Stopped = true
			log.Debug("notifier stopped; ending cycle")
			return nil
		default:
			stats.Dropped++
			log.Warn("enqueue failed", logx.Err(err))
		}
	}

	if stats.Admitted > 0 || stats.Limited > 0 || stats.Dropped > 0 {
		p.log.Info("cycle done",
			logx.Int("fetched", stats.Fetched),
			logx.Int("admitted", stats.Admitted),
			logx.Int("deduped", stats.Deduped),
			logx.Int("limited", stats.Limited),
			logx.Int("dropped", stats.Dropped),
		)
	}
	return nil
}

func (p *Processor) publish(stats CycleStats) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: eventbus.TopicCycleDone, Time: time.Now(), Data: stats})
}

// rank orders unacknowledged first, then by severity (highest first), then
// by detection time (newest first). Ties keep fetch order.
func rank(pairs []pair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i].problem, pairs[j].problem
		if a.Acknowledged != b.Acknowledged {
			return !a.Acknowledged
		}
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		return a.Clock > b.Clock
	})
}

// latency is the time since clock. It is omitted for negative or future
// clocks and when the difference does not fit a Duration.
func latency(clock int64, now time.Time) (time.Duration, bool) {
	if clock < 0 || clock > now.Unix() {
		return 0, false
	}
	lat := now.Sub(time.Unix(clock, 0))
	if lat < 0 || lat == math.MaxInt64 {
		return 0, false
	}
	return lat, true
}

// OpenURL substitutes eventID into format. An empty format yields "".
func OpenURL(format, eventID string) string {
	if format == "" {
		return ""
	}
	return strings.ReplaceAll(format, "{eventid}", eventID)
}
