// Package audit turns delivery and acknowledgement events from the bus into
// storage audit entries.
package audit

import (
	"context"
	"time"

	"zbxbridge/internal/eventbus"
	"zbxbridge/internal/notifier"
	"zbxbridge/internal/storage"
	logx "zbxbridge/pkg/logx"
)

const writeTimeout = 2 * time.Second

type Recorder struct {
	store storage.Store
	log   logx.Logger
	ch    <-chan eventbus.Event
	unsub func()
}

// New subscribes to bus immediately so no event published after New is
// missed. Call Run to start writing.
func New(store storage.Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	ch, unsub := bus.Subscribe(256)
	return &Recorder{store: store, log: log.With(logx.String("comp", "audit")), ch: ch, unsub: unsub}
}

// Run writes entries until ctx is done, then flushes what is already
// buffered and unsubscribes.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.unsub()
	for {
		select {
		case <-ctx.Done():
			r.flush(ctx)
			return nil
		case ev, ok := <-r.ch:
			if !ok {
				return nil
			}
			r.record(ctx, ev)
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	for {
		select {
		case ev, ok := <-r.ch:
			if !ok {
				return
			}
			r.record(ctx, ev)
		default:
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev eventbus.Event) {
	e, ok := Entry(ev)
	if !ok {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := r.store.AppendAudit(wctx, e); err != nil {
		r.log.Warn("audit append failed", logx.String("kind", e.Kind), logx.String("eventid", e.EventID), logx.Err(err))
	}
}

// Entry maps a bus event to an audit entry. Events that are not audited
// return false.
func Entry(ev eventbus.Event) (storage.AuditEntry, bool) {
	e := storage.AuditEntry{At: ev.Time}
	switch ev.Type {
	case eventbus.TopicNotifySent, eventbus.TopicNotifyFailed:
		d, ok := ev.Data.(notifier.DeliveryEvent)
		if !ok {
			return e, false
		}
		e.Kind = storage.KindDelivery
		e.EventID, e.Severity, e.Host = d.EventID, d.Severity, d.Host
		e.Action = d.Renderer
		if d.DryRun {
			e.Action = "dry-run"
		}
		e.OK = d.Error == ""
		e.Error = d.Error
		e.TookMS = d.Took.Milliseconds()
	case eventbus.TopicNotifyDropped:
		d, ok := ev.Data.(notifier.DropEvent)
		if !ok {
			return e, false
		}
		e.Kind = storage.KindDrop
		e.EventID = d.EventID
		e.Error = d.Reason
	case eventbus.TopicAckCompleted:
		a, ok := ev.Data.(notifier.AckEvent)
		if !ok {
			return e, false
		}
		e.Kind = storage.KindAck
		e.EventID, e.Action, e.Message = a.EventID, a.Action, a.Message
		e.OK = a.Error == ""
		e.Error = a.Error
		e.TookMS = a.Took.Milliseconds()
	default:
		return e, false
	}
	return e, true
}
