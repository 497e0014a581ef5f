package ratelimit

import (
	"testing"
	"time"
)

func TestWindowBurstBoundary(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		max    int
		window time.Duration
	}{
		{"three per five seconds", 3, 5 * time.Second},
		{"one per second", 1, time.Second},
		{"ten per minute", 10, time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w := New(tc.max, tc.window)
			now := time.Unix(1700000000, 0)
			for i := 0; i < tc.max; i++ {
				if !w.TryAcquire(now) {
					t.Fatalf("admission %d denied", i+1)
				}
			}
			if w.TryAcquire(now) {
				t.Fatalf("admission %d must be denied", tc.max+1)
			}
			// Exactly W later the samples are still inside the window.
			if w.TryAcquire(now.Add(tc.window)) {
				t.Fatalf("admission at now+W must be denied")
			}
			if !w.TryAcquire(now.Add(tc.window + time.Nanosecond)) {
				t.Fatalf("admission after W must succeed")
			}
		})
	}
}

func TestWindowSlides(t *testing.T) {
	t.Parallel()

	w := New(2, 10*time.Second)
	t0 := time.Unix(0, 0)
	if !w.TryAcquire(t0) || !w.TryAcquire(t0.Add(6*time.Second)) {
		t.Fatalf("initial admissions denied")
	}
	if w.TryAcquire(t0.Add(9 * time.Second)) {
		t.Fatalf("third admission inside window must be denied")
	}
	// t0 expires, t0+6s is still inside.
	if !w.TryAcquire(t0.Add(11 * time.Second)) {
		t.Fatalf("admission after oldest expired must succeed")
	}
	if w.Len() != 2 {
		t.Fatalf("len=%d want 2", w.Len())
	}
	if w.TryAcquire(t0.Add(12 * time.Second)) {
		t.Fatalf("window full again")
	}
}
