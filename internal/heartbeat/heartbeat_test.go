package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"zbxbridge/internal/metrics"
	logx "zbxbridge/pkg/logx"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestBeatReportsDeltas(t *testing.T) {
	t.Parallel()
	var buf syncBuffer
	snap := metrics.Snapshot{Cycles: 3, Admitted: 5, Failed: 1}
	h := New(Config{}, func() metrics.Snapshot { return snap }, logx.NewWriter(&buf, "info"))

	h.Beat()
	snap.Admitted = 8
	h.Beat()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d: %s", len(lines), buf.String())
	}
	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if second["admitted"] != float64(8) || second["admitted_since_last"] != float64(3) || second["failed_since_last"] != float64(0) {
		t.Fatalf("second beat = %v", second)
	}
}

func TestRunRejectsBadSpec(t *testing.T) {
	t.Parallel()
	h := New(Config{Spec: "sometimes"}, func() metrics.Snapshot { return metrics.Snapshot{} }, logx.Nop())
	if err := h.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	h = New(Config{Spec: "@hourly", Timezone: "Nowhere/City"}, func() metrics.Snapshot { return metrics.Snapshot{} }, logx.Nop())
	if err := h.Run(context.Background()); err == nil {
		t.Fatalf("expected timezone error")
	}
}

func TestRunEmptySpecReturns(t *testing.T) {
	t.Parallel()
	h := New(Config{}, func() metrics.Snapshot { return metrics.Snapshot{} }, logx.Nop())
	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunBeatsOnSchedule(t *testing.T) {
	t.Parallel()
	var buf syncBuffer
	h := New(Config{Spec: "@every 1s"}, func() metrics.Snapshot { return metrics.Snapshot{Cycles: 1} }, logx.NewWriter(&buf, "info"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for !strings.Contains(buf.String(), `"message":"heartbeat"`) {
		if time.Now().After(deadline) {
			t.Fatalf("no heartbeat logged: %s", buf.String())
		}
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
