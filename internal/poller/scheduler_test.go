package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	logx "zbxbridge/pkg/logx"
)

type countingCycler struct {
	n     atomic.Int32
	err   error
	failN int32
	onRun func(n int32)
}

func (c *countingCycler) RunCycle(ctx context.Context) error {
	n := c.n.Add(1)
	if c.onRun != nil {
		c.onRun(n)
	}
	if c.failN > 0 && n == c.failN {
		return c.err
	}
	return nil
}

type fakeDrainer struct {
	mu     sync.Mutex
	closed bool
	waited bool
	err    error
}

func (d *fakeDrainer) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *fakeDrainer) Wait(context.Context) error {
	d.mu.Lock()
	d.waited = true
	d.mu.Unlock()
	return d.err
}

func (d *fakeDrainer) drained() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed && d.waited
}

func TestRunOnce(t *testing.T) {
	t.Parallel()

	c := &countingCycler{}
	d := &fakeDrainer{}
	s := NewScheduler(SchedulerConfig{Interval: time.Hour, Once: true}, c, d, logx.Nop())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.n.Load() != 1 {
		t.Fatalf("cycles=%d want 1", c.n.Load())
	}
	if !d.drained() {
		t.Fatalf("queue must be closed and drained on exit")
	}
	if s.State() != StateStopped {
		t.Fatalf("state=%v", s.State())
	}
}

func TestCycleErrorIsReturned(t *testing.T) {
	t.Parallel()

	boom := errors.New("fetch failed")
	c := &countingCycler{err: boom, failN: 2}
	d := &fakeDrainer{err: errors.New("delivery panicked")}
	s := NewScheduler(SchedulerConfig{}, c, d, logx.Nop())
	err := s.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run err=%v want %v", err, boom)
	}
	if c.n.Load() != 2 {
		t.Fatalf("cycles=%d want 2", c.n.Load())
	}
	// An abnormal delivery end is logged, not returned.
	if !d.drained() {
		t.Fatalf("drain skipped on error path")
	}
}

func TestCancelDuringSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	c := &countingCycler{onRun: func(int32) { cancel() }}
	d := &fakeDrainer{}
	s := NewScheduler(SchedulerConfig{Interval: time.Hour}, c, d, logx.Nop())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop on cancellation")
	}
	if c.n.Load() != 1 {
		t.Fatalf("cycles=%d want 1", c.n.Load())
	}
	if !d.drained() {
		t.Fatalf("drain skipped on cancellation")
	}
}

func TestCancelledBeforeFirstCycle(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &countingCycler{}
	s := NewScheduler(SchedulerConfig{Interval: time.Millisecond}, c, &fakeDrainer{}, logx.Nop())
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.n.Load() != 0 {
		t.Fatalf("no cycle may start after cancellation, got %d", c.n.Load())
	}
}

func TestCycleNotInterruptedByCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var interrupted atomic.Bool
	cyc := cyclerFunc(func(cctx context.Context) error {
		cancel()
		time.Sleep(10 * time.Millisecond)
		interrupted.Store(cctx.Err() != nil)
		return nil
	})
	s := NewScheduler(SchedulerConfig{Interval: time.Hour}, cyc, nil, logx.Nop())
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if interrupted.Load() {
		t.Fatalf("running cycle observed cancellation")
	}
}

func TestBackToBackWhenCycleExceedsInterval(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	c := &countingCycler{onRun: func(n int32) {
		time.Sleep(5 * time.Millisecond)
		if n == 3 {
			cancel()
		}
	}}
	s := NewScheduler(SchedulerConfig{Interval: time.Millisecond}, c, nil, logx.Nop())
	started := time.Now()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.n.Load() != 3 || s.Cycles() != 3 {
		t.Fatalf("cycles=%d", c.n.Load())
	}
	if time.Since(started) > time.Second {
		t.Fatalf("overrunning cycles must not sleep")
	}
}

type cyclerFunc func(ctx context.Context) error

func (f cyclerFunc) RunCycle(ctx context.Context) error { return f(ctx) }

func TestStateString(t *testing.T) {
	t.Parallel()

	for st, want := range map[State]string{StateIdle: "idle", StateRunning: "running", StateSleeping: "sleeping", StateStopping: "stopping", StateStopped: "stopped", State(42): "unknown"} {
		if st.String() != want {
			t.Fatalf("%d.String()=%q want %q", st, st.String(), want)
		}
	}
}
