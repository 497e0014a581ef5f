// Package ratelimit implements the sliding-window admission control applied
// to outgoing notifications.
package ratelimit

import "time"

// Window admits at most Max events in any trailing Window-long interval.
//
// It is not safe for concurrent use; the poll loop is its only caller.
type Window struct {
	max    int
	window time.Duration
	// samples holds admission times, oldest first.
	samples []time.Time
}

func New(limit int, window time.Duration) *Window {
	return &Window{max: limit, window: window, samples: make([]time.Time, 0, max(1, limit))}
}

// TryAcquire drops samples older than window before now and records now if
// fewer than max samples remain.
func (w *Window) TryAcquire(now time.Time) bool {
	drop := 0
	for drop < len(w.samples) && now.Sub(w.samples[drop]) > w.window {
		drop++
	}
	if drop > 0 {
		w.samples = append(w.samples[:0], w.samples[drop:]...)
	}
	if len(w.samples) >= w.max {
		return false
	}
	w.samples = append(w.samples, now)
	return true
}

// Len is the number of samples currently inside the window as of the last
// TryAcquire.
func (w *Window) Len() int { return len(w.samples) }
