package notifier

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"zbxbridge/internal/eventbus"
	"zbxbridge/internal/zabbix"
	logx "zbxbridge/pkg/logx"
)

type recordingRenderer struct {
	mu    sync.Mutex
	got   []string
	block chan struct{}
	fail  map[string]error
	panic map[string]bool
	onAck func(AckFunc)
}

func (r *recordingRenderer) Name() string { return "recording" }

func (r *recordingRenderer) Render(ctx context.Context, it Item, ack AckFunc) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.got = append(r.got, it.Problem.EventID)
	r.mu.Unlock()
	if r.panic[it.Problem.EventID] {
		panic("render exploded")
	}
	if r.onAck != nil {
		r.onAck(ack)
	}
	return r.fail[it.Problem.EventID]
}

func (r *recordingRenderer) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

type ackRecorder struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func (a *ackRecorder) Acknowledge(_ context.Context, eventID string, action zabbix.AckAction, message string) error {
	a.mu.Lock()
	a.calls = append(a.calls, eventID+"/"+action.String()+"/"+message)
	a.mu.Unlock()
	if a.done != nil {
		close(a.done)
	}
	return nil
}

func item(id string) Item {
	return Item{Problem: zabbix.Problem{EventID: id, Name: "problem " + id, Severity: zabbix.SeverityHigh}}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestTryEnqueueBeforeStartAndAfterClose(t *testing.T) {
	t.Parallel()

	s := New(Config{QueueSize: 2}, &recordingRenderer{}, nil, logx.Nop(), nil)
	if err := s.TryEnqueue(item("1")); !errors.Is(err, ErrStopped) {
		t.Fatalf("before start: err=%v", err)
	}
	s.Start(context.Background())
	s.Close()
	s.Close()
	if err := s.TryEnqueue(item("2")); !errors.Is(err, ErrStopped) {
		t.Fatalf("after close: err=%v", err)
	}
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestQueueFullDropsNewest(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	r := &recordingRenderer{block: make(chan struct{})}
	s := New(Config{QueueSize: 1}, r, nil, logx.Nop(), bus)
	s.Start(context.Background())

	// The first item is taken by the delivery task and blocks in Render; the
	// second fills the queue.
	if err := s.TryEnqueue(item("1")); err != nil {
		t.Fatalf("enqueue 1: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for s.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := s.TryEnqueue(item("2")); err != nil {
		t.Fatalf("enqueue 2: %v", err)
	}
	if err := s.TryEnqueue(item("3")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("enqueue 3: err=%v want ErrQueueFull", err)
	}

	close(r.block)
	s.Close()
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := strings.Join(r.ids(), ","); got != "1,2" {
		t.Fatalf("rendered %q want 1,2", got)
	}

	var dropped int
	for {
		select {
		case ev := <-events:
			if ev.Type == eventbus.TopicNotifyDropped {
				dropped++
				if d, ok := ev.Data.(DropEvent); !ok || d.EventID != "3" || d.Reason != "queue_full" {
					t.Fatalf("unexpected drop event %+v", ev.Data)
				}
			}
			continue
		default:
		}
		break
	}
	if dropped != 1 {
		t.Fatalf("dropped events=%d want 1", dropped)
	}
}

func TestDeliveryContinuesAfterFailureAndPanic(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	r := &recordingRenderer{
		fail:  map[string]error{"1": errors.New("sink down")},
		panic: map[string]bool{"2": true},
	}
	s := New(Config{QueueSize: 8}, r, nil, logx.Nop(), bus)
	s.Start(context.Background())
	for _, id := range []string{"1", "2", "3"} {
		if err := s.TryEnqueue(item(id)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	s.Close()
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("delivery task must survive render failures: %v", err)
	}
	if got := strings.Join(r.ids(), ","); got != "1,2,3" {
		t.Fatalf("rendered %q", got)
	}

	outcomes := map[string]string{}
	for len(events) > 0 {
		ev := <-events
		if d, ok := ev.Data.(DeliveryEvent); ok && ev.Type != eventbus.TopicNotifyQueued {
			outcomes[d.EventID] = ev.Type
		}
	}
	want := map[string]string{"1": eventbus.TopicNotifyFailed, "2": eventbus.TopicNotifyFailed, "3": eventbus.TopicNotifySent}
	for id, topic := range want {
		if outcomes[id] != topic {
			t.Fatalf("event %s outcome=%q want %q", id, outcomes[id], topic)
		}
	}
}

func TestDryRunLogsInsteadOfRendering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := &recordingRenderer{}
	s := New(Config{QueueSize: 4, DryRun: true}, r, nil, logx.NewWriter(&buf, "info"), nil)
	s.Start(context.Background())
	it := item("42")
	it.OpenURL = "https://zbx/tr_events.php?eventid=42"
	if err := s.TryEnqueue(it); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	s.Close()
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(r.ids()) != 0 {
		t.Fatalf("renderer called in dry-run: %v", r.ids())
	}
	out := buf.String()
	if !strings.Contains(out, "dry-run") || !strings.Contains(out, `"eventid":"42"`) || !strings.Contains(out, "eventid=42") {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestRendererAckIsScheduled(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	acker := &ackRecorder{done: make(chan struct{})}
	r := &recordingRenderer{onAck: func(ack AckFunc) {
		if err := ack(context.Background(), "7", zabbix.ActionAck, "on it"); err != nil {
			t.Errorf("ack: %v", err)
		}
	}}
	s := New(Config{QueueSize: 4}, r, acker, logx.Nop(), bus)
	s.Start(context.Background())
	if err := s.TryEnqueue(item("7")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-acker.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("acknowledgement not performed")
	}
	if err := s.Stop(waitCtx(t)); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if acker.calls[0] != "7/ack/on it" {
		t.Fatalf("calls=%v", acker.calls)
	}

	var completed bool
	for len(events) > 0 {
		if ev := <-events; ev.Type == eventbus.TopicAckCompleted {
			completed = true
		}
	}
	if !completed {
		t.Fatalf("missing %s event", eventbus.TopicAckCompleted)
	}

	// After Stop no new acknowledgement is accepted.
	if err := s.requestAck(context.Background(), "8", zabbix.ActionAck, ""); !errors.Is(err, ErrStopped) {
		t.Fatalf("ack after stop: err=%v", err)
	}
}
