package poller

import (
	"context"
	"sync/atomic"
	"time"

	logx "zbxbridge/pkg/logx"
)

// State is the scheduler lifecycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSleeping
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Cycler runs one poll cycle.
type Cycler interface {
	RunCycle(ctx context.Context) error
}

// Drainer is the delivery side the scheduler shuts down on exit.
type Drainer interface {
	Close()
	Wait(ctx context.Context) error
}

type SchedulerConfig struct {
	Interval time.Duration
	// Once runs a single cycle and returns.
	Once bool
	// DrainTimeout bounds the wait for the delivery task on exit. Zero waits
	// without limit.
	DrainTimeout time.Duration
}

// Scheduler drives the Cycler at a fixed cadence measured start to start.
type Scheduler struct {
	cfg     SchedulerConfig
	cycler  Cycler
	drainer Drainer
	log     logx.Logger
	state   atomic.Int32
	cycles  atomic.Uint64
}

func NewScheduler(cfg SchedulerConfig, cycler Cycler, drainer Drainer, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{cfg: cfg, cycler: cycler, drainer: drainer, log: log.With(logx.String("comp", "scheduler"))}
}

func (s *Scheduler) State() State { return State(s.state.Load()) }

// Cycles is the number of cycles started.
func (s *Scheduler) Cycles() uint64 { return s.cycles.Load() }

func (s *Scheduler) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.log.Trace("scheduler state", logx.String("from", prev.String()), logx.String("to", st.String()))
	}
}

// Run loops until ctx is cancelled, a cycle fails, or (in run-once mode)
// the first cycle completes. A started cycle is never interrupted by
// cancellation. On every exit path the delivery queue is closed and
// drained; a failed cycle's error is returned.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", logx.Duration("interval", s.cfg.Interval), logx.Bool("once", s.cfg.Once))
	defer func() {
		s.setState(StateStopping)
		s.drain()
		s.setState(StateStopped)
		s.log.Info("scheduler stopped", logx.Uint64("cycles", s.Cycles()))
	}()

	for {
		// Cancellation wins over starting another cycle.
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		s.setState(StateRunning)
		s.cycles.Add(1)
		started := time.Now()
		if err := s.cycler.RunCycle(context.WithoutCancel(ctx)); err != nil {
			s.log.Error("poll cycle failed", logx.Err(err))
			return err
		}
		if s.cfg.Once {
			return nil
		}

		sleep := max(0, s.cfg.Interval-time.Since(started))
		if sleep == 0 {
			continue
		}
		s.setState(StateSleeping)
		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (s *Scheduler) drain() {
	if s.drainer == nil {
		return
	}
	s.drainer.Close()
	ctx := context.Background()
	if s.cfg.DrainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DrainTimeout)
		defer cancel()
	}
	if err := s.drainer.Wait(ctx); err != nil {
		s.log.Warn("delivery task ended abnormally", logx.Err(err))
	}
}
