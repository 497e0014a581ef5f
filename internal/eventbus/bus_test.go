package eventbus

import "testing"

func TestPublishFansOutAndCountsDrops(t *testing.T) {
	t.Parallel()
	b := New()
	fast, unsubFast := b.Subscribe(4)
	defer unsubFast()
	slow, unsubSlow := b.Subscribe(1)
	defer unsubSlow()

	b.Publish(Event{Type: TopicCycleDone, Data: 1})
	b.Publish(Event{Type: TopicCycleDone, Data: 2})

	if got := len(fast); got != 2 {
		t.Fatalf("fast subscriber got %d events", got)
	}
	ev := <-slow
	if ev.Data != 1 || ev.Time.IsZero() {
		t.Fatalf("slow subscriber got %+v", ev)
	}
	if b.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", b.Dropped())
	}
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed")
	}
	b.Publish(Event{Type: TopicNotifySent})
	if b.Dropped() != 0 {
		t.Fatal("publishing without subscribers must not count drops")
	}
}
