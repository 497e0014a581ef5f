package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func TestGoKeepsFirstErrorAndCancels(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")
	s.Go("failing", func(context.Context) error { return boom })
	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, want boom", err)
	}
	if c := s.Counters(); c.Started != 2 || c.Active != 0 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestCanceledIsCleanExit(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("cancelled", func(ctx context.Context) error { return context.Canceled })
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop = %v", err)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go0("panicker", func(context.Context) { panic("kaboom") })
	err := s.Wait(context.Background())
	if err == nil || s.Counters().Panics != 1 {
		t.Fatalf("err = %v, panics = %d", err, s.Counters().Panics)
	}
}

func TestGoRestartRetriesUntilLimit(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(context.Context) error {
		runs.Add(1)
		return errors.New("flaky")
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond), WithMaxRestarts(2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("expected the restart error to be kept")
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestGoRestartStopsOnCleanExit(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("once", func(context.Context) error {
		runs.Add(1)
		return nil
	})
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if runs.Load() != 1 {
		t.Fatalf("runs = %d", runs.Load())
	}
}

func TestWaitHonorsDeadline(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	release := make(chan struct{})
	s.Go0("stuck", func(context.Context) { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}
}

func TestRestartDelayGrowsWithinWindow(t *testing.T) {
	t.Parallel()
	cfg := restartCfg{minBackoff: 100 * time.Millisecond, maxBackoff: 400 * time.Millisecond}
	b := cfg.backOff()

	within := func(d, lo, hi time.Duration) bool { return d >= lo && d <= hi }
	if d := b.NextBackOff(); !within(d, 80*time.Millisecond, 120*time.Millisecond) {
		t.Fatalf("first delay = %v", d)
	}
	var last time.Duration
	for i := 0; i < 20; i++ {
		last = b.NextBackOff()
		if last > 480*time.Millisecond {
			t.Fatalf("delay %v exceeds max plus jitter", last)
		}
	}
	if last < 320*time.Millisecond {
		t.Fatalf("delay %v did not reach the max window", last)
	}

	b.Reset()
	if d := b.NextBackOff(); !within(d, 80*time.Millisecond, 120*time.Millisecond) {
		t.Fatalf("delay after reset = %v", d)
	}
}
