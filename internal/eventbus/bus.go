package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Topic names published by the bridge.
const (
	TopicCycleDone      = "cycle.done"
	TopicNotifyQueued   = "notify.queued"
	TopicNotifyDropped  = "notify.dropped"
	TopicNotifySent     = "notify.sent"
	TopicNotifyFailed   = "notify.failed"
	TopicAckRequested   = "ack.requested"
	TopicAckCompleted   = "ack.completed"
	TopicConfigReloaded = "config.reloaded"
)

// Event is an in-memory signal used to decouple producers (poller, notifier)
// from observers (metrics, audit, heartbeat).
//
// Publish never blocks; a slow subscriber loses events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	// Dropped counts events not delivered because a subscriber was full.
	Dropped() uint64
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Holding the read lock during the sends keeps unsubscribe (which closes
	// the channel under the write lock) from racing a send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
