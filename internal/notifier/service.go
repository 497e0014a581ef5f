package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"zbxbridge/internal/eventbus"
	rtsup "zbxbridge/internal/runtime/supervisor"
	"zbxbridge/internal/zabbix"
	logx "zbxbridge/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Service connects the poll loop (sole producer) to a single delivery
// goroutine (sole consumer) through a bounded queue. Producers never block:
// a full queue rejects the item.
type Service struct {
	mu sync.Mutex

	cfg      Config
	log      logx.Logger
	renderer Renderer
	acker    Acknowledger
	bus      eventbus.Bus

	queue     chan Item
	accepting bool
	acking    bool
	sup       *rtsup.Supervisor
	ackSup    *rtsup.Supervisor
}

func New(cfg Config, renderer Renderer, acker Acknowledger, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 30 * time.Second
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 30 * time.Second
	}
	return &Service{cfg: cfg, renderer: renderer, acker: acker, log: log, bus: bus}
}

// Start creates the queue and launches the delivery task. It is a no-op if
// already started.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return
	}
	s.queue = make(chan Item, s.cfg.QueueSize)
	s.accepting = true
	s.acking = true
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notifier"))),
		rtsup.WithCancelOnError(false),
	)
	// Ack requests outlive the delivery task: an operator may press a button
	// while the queue drains.
	s.ackSup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notifier.ack"))),
		rtsup.WithCancelOnError(false),
	)
	q := s.queue
	s.sup.Go0("delivery", func(c context.Context) { s.deliveryLoop(c, q) })
	s.log.Info("notifier started", logx.Int("queue_size", s.cfg.QueueSize), logx.Bool("dry_run", s.cfg.DryRun))
}

// TryEnqueue hands it to the delivery task without blocking.
func (s *Service) TryEnqueue(it Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepting || s.queue == nil {
		return ErrStopped
	}
	select {
	case s.queue <- it:
		s.publish(eventbus.TopicNotifyQueued, DeliveryEvent{EventID: it.Problem.EventID, Severity: it.Problem.Severity.String(), Host: it.HostName()})
		return nil
	default:
		s.publish(eventbus.TopicNotifyDropped, DropEvent{EventID: it.Problem.EventID, Reason: "queue_full"})
		return ErrQueueFull
	}
}

// Len is the number of queued items.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops intake and closes the queue; the delivery task drains what is
// left and exits. Safe to call more than once.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepting {
		return
	}
	s.accepting = false
	if s.queue != nil {
		close(s.queue)
	}
}

// Wait blocks until the delivery task has exited or ctx is done. It returns
// the task's abnormal termination error (a recovered panic), if any.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Wait(ctx)
}

// Stop closes intake, waits for the queue to drain and then for in-flight
// acknowledgements, each bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.Close()
	err := s.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		s.mu.Lock()
		sup := s.sup
		s.mu.Unlock()
		sup.Cancel()
	}

	s.mu.Lock()
	s.acking = false
	ackSup := s.ackSup
	s.mu.Unlock()
	if ackSup != nil {
		if werr := ackSup.Wait(ctx); werr != nil && errors.Is(werr, context.DeadlineExceeded) {
			ackSup.Cancel()
		}
	}
	return err
}

func (s *Service) deliveryLoop(ctx context.Context, q <-chan Item) {
	for it := range q {
		s.deliver(ctx, it)
	}
	s.log.Debug("delivery task drained")
}

func (s *Service) deliver(ctx context.Context, it Item) {
	log := s.log.With(
		logx.String("eventid", it.Problem.EventID),
		logx.String("severity", it.Problem.Severity.String()),
		logx.String("host", it.HostName()),
	)
	ev := DeliveryEvent{EventID: it.Problem.EventID, Severity: it.Problem.Severity.String(), Host: it.HostName(), DryRun: s.cfg.DryRun}

	if s.cfg.DryRun || s.renderer == nil {
		fields := []logx.Field{logx.String("summary", it.Summary()), logx.String("name", it.Problem.Name), logx.String("url", it.OpenURL)}
		if it.HasLatency {
			fields = append(fields, logx.Duration("latency", it.Latency))
		}
		log.Info("dry-run: notification not rendered", fields...)
		ev.DryRun = true
		s.publish(eventbus.TopicNotifySent, ev)
		return
	}
	ev.Renderer = s.renderer.Name()

	started := time.Now()
	err := s.render(ctx, it)
	ev.Took = time.Since(started)
	if err != nil {
		ev.Error = err.Error()
		log.Warn("notification delivery failed", logx.String("renderer", ev.Renderer), logx.Err(err))
		s.publish(eventbus.TopicNotifyFailed, ev)
		return
	}
	log.Debug("notification delivered", logx.String("renderer", ev.Renderer), logx.Duration("took", ev.Took))
	s.publish(eventbus.TopicNotifySent, ev)
}

// render calls the renderer with a deadline; a renderer panic becomes an
// error so one bad item cannot end the delivery task.
func (s *Service) render(ctx context.Context, it Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("renderer panic: %v", r)
		}
	}()
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RenderTimeout)
	defer cancel()
	return s.renderer.Render(rctx, it, s.requestAck)
}

// requestAck schedules an acknowledgement call and returns immediately.
func (s *Service) requestAck(_ context.Context, eventID string, action zabbix.AckAction, message string) error {
	s.mu.Lock()
	acking := s.acking
	sup := s.ackSup
	acker := s.acker
	s.mu.Unlock()
	if !acking || sup == nil {
		return ErrStopped
	}
	if acker == nil {
		return errors.New("acknowledgement not configured")
	}

	s.publish(eventbus.TopicAckRequested, AckEvent{EventID: eventID, Action: action.String(), Message: message})
	sup.Go0("ack."+eventID, func(c context.Context) {
		actx, cancel := context.WithTimeout(c, s.cfg.AckTimeout)
		defer cancel()
		started := time.Now()
		err := acker.Acknowledge(actx, eventID, action, message)
		ev := AckEvent{EventID: eventID, Action: action.String(), Message: message, Took: time.Since(started)}
		if err != nil {
			ev.Error = err.Error()
			s.log.Warn("acknowledgement failed", logx.String("eventid", eventID), logx.String("action", action.String()), logx.Err(err))
		}
		s.publish(eventbus.TopicAckCompleted, ev)
	})
	return nil
}

func (s *Service) publish(topic string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: topic, Time: time.Now(), Data: data})
}
