// Package heartbeat logs a counters snapshot on a cron schedule so an
// operator watching the logs (or the Telegram log sink) sees the bridge is
// alive even when no incident fires.
package heartbeat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"zbxbridge/internal/metrics"
	logx "zbxbridge/pkg/logx"
)

type Config struct {
	// Spec is a 5-field cron spec or a descriptor ("@hourly", "@every 10m").
	Spec     string
	Timezone string
}

type Heartbeat struct {
	cfg     Config
	snap    func() metrics.Snapshot
	log     logx.Logger
	started time.Time
	now     func() time.Time

	mu   sync.Mutex
	last metrics.Snapshot
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func New(cfg Config, snap func() metrics.Snapshot, log logx.Logger) *Heartbeat {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Heartbeat{cfg: cfg, snap: snap, log: log.With(logx.String("comp", "heartbeat")), started: time.Now(), now: time.Now}
}

// Run schedules beats until ctx is done. An empty spec returns at once.
func (h *Heartbeat) Run(ctx context.Context) error {
	spec := strings.TrimSpace(h.cfg.Spec)
	if spec == "" {
		return nil
	}
	loc := time.Local
	if tz := strings.TrimSpace(h.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return errors.Wrapf(err, "heartbeat timezone %q", tz)
		}
		loc = l
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, h.Beat); err != nil {
		return errors.Wrapf(err, "heartbeat spec %q", spec)
	}
	c.Start()
	h.log.Info("heartbeat scheduled", logx.String("spec", spec), logx.String("tz", loc.String()))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Beat logs totals and the change since the previous beat.
func (h *Heartbeat) Beat() {
	cur := h.snap()
	h.mu.Lock()
	prev := h.last
	h.last = cur
	h.mu.Unlock()

	h.log.Info("heartbeat",
		logx.Duration("uptime", h.now().Sub(h.started).Truncate(time.Second)),
		logx.Uint64("cycles", cur.Cycles),
		logx.Uint64("cycle_errors", cur.CycleErrors),
		logx.Uint64("admitted", cur.Admitted),
		logx.Uint64("admitted_since_last", cur.Admitted-prev.Admitted),
		logx.Uint64("dropped", cur.Dropped),
		logx.Uint64("delivered", cur.Delivered),
		logx.Uint64("failed", cur.Failed),
		logx.Uint64("failed_since_last", cur.Failed-prev.Failed),
		logx.Uint64("acks", cur.Acks),
	)
}
