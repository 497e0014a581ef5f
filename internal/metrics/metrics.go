// Package metrics exposes bridge counters to Prometheus and keeps a cheap
// in-process snapshot for the heartbeat.
package metrics

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zbxbridge/internal/eventbus"
	"zbxbridge/internal/notifier"
	"zbxbridge/internal/poller"
)

const namespace = "zbxbridge"

// Snapshot is a point-in-time copy of the headline counters.
type Snapshot struct {
	Cycles      uint64
	CycleErrors uint64
	Admitted    uint64
	Deduped     uint64
	Limited     uint64
	Dropped     uint64
	Delivered   uint64
	Failed      uint64
	Acks        uint64
	AckFailures uint64
	BusDropped  uint64
}

type Metrics struct {
	reg *prometheus.Registry
	bus eventbus.Bus

	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	callAttempts *prometheus.HistogramVec

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	items         *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	deliveryTook  *prometheus.HistogramVec
	acks          *prometheus.CounterVec

	snap struct {
		cycles, cycleErrors                  atomic.Uint64
		admitted, deduped, limited, dropped  atomic.Uint64
		delivered, failed, acks, ackFailures atomic.Uint64
	}
}

// New registers every collector on a private registry. bus may be nil; when
// set, its drop counter is exported too.
func New(bus eventbus.Bus) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		reg: reg,
		bus: bus,
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "zabbix_calls_total",
			Help: "Remote calls by method and outcome (ok, error, exhausted).",
		}, []string{"method", "outcome"}),
		callDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "zabbix_call_duration_seconds",
			Help:    "Duration of remote calls including retries.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
		callAttempts: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "zabbix_call_attempts",
			Help:    "Attempts per remote call.",
			Buckets: []float64{1, 2, 3},
		}, []string{"method"}),
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "poll_cycles_total",
			Help: "Completed poll cycles by result.",
		}, []string{"result"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "poll_cycle_duration_seconds",
			Help:    "Duration of poll cycles.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		items: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "poll_items_total",
			Help: "Incidents seen by the cycle by outcome.",
		}, []string{"outcome"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "Delivered notifications by renderer and result.",
		}, []string{"renderer", "result"}),
		deliveryTook: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "delivery_duration_seconds",
			Help:    "Time spent rendering one notification.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"renderer"}),
		acks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "acks_total",
			Help: "Acknowledgement requests by action and result.",
		}, []string{"action", "result"}),
	}
	if bus != nil {
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "eventbus_dropped_total",
			Help: "Events not delivered to a slow subscriber.",
		}, func() float64 { return float64(bus.Dropped()) })
	}
	return m
}

// Registry exposes the registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// QueueLength exports fn as the current notification queue length.
func (m *Metrics) QueueLength(fn func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: "queue_length",
		Help: "Items waiting for the delivery task.",
	}, func() float64 { return float64(fn()) })
}

// ObserveCall implements zabbix.CallObserver.
func (m *Metrics) ObserveCall(method, outcome string, attempts int, took time.Duration) {
	m.calls.WithLabelValues(method, outcome).Inc()
	m.callDuration.WithLabelValues(method).Observe(took.Seconds())
	m.callAttempts.WithLabelValues(method).Observe(float64(attempts))
}

// Consume records bus events until ctx is done, then records whatever is
// already buffered.
func (m *Metrics) Consume(ctx context.Context, ch <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						return nil
					}
					m.Record(ev)
				default:
					return nil
				}
			}
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			m.Record(ev)
		}
	}
}

// Record applies one bus event.
func (m *Metrics) Record(ev eventbus.Event) {
	switch d := ev.Data.(type) {
	case poller.CycleStats:
		result := "ok"
		if d.Error != "" {
			result = "error"
			m.snap.cycleErrors.Add(1)
		}
		m.snap.cycles.Add(1)
		m.cycles.WithLabelValues(result).Inc()
		m.cycleDuration.Observe(d.Took.Seconds())
		m.addItems("fetched", d.Fetched)
		m.addItems("skipped_acked", d.Skipped)
		m.addItems("deduped", d.Deduped)
		m.addItems("limited", d.Limited)
		m.addItems("dropped", d.Dropped)
		m.addItems("admitted", d.Admitted)
		m.snap.admitted.Add(uint64(d.Admitted))
		m.snap.deduped.Add(uint64(d.Deduped))
		m.snap.limited.Add(uint64(d.Limited))
		m.snap.dropped.Add(uint64(d.Dropped))
	case notifier.DeliveryEvent:
		if ev.Type != eventbus.TopicNotifySent && ev.Type != eventbus.TopicNotifyFailed {
			return
		}
		renderer := d.Renderer
		if d.DryRun {
			renderer = "dry-run"
		}
		result := "ok"
		if ev.Type == eventbus.TopicNotifyFailed {
			result = "error"
			m.snap.failed.Add(1)
		} else {
			m.snap.delivered.Add(1)
		}
		m.deliveries.WithLabelValues(renderer, result).Inc()
		if !d.DryRun {
			m.deliveryTook.WithLabelValues(renderer).Observe(d.Took.Seconds())
		}
	case notifier.AckEvent:
		if ev.Type != eventbus.TopicAckCompleted {
			return
		}
		result := "ok"
		if d.Error != "" {
			result = "error"
			m.snap.ackFailures.Add(1)
		}
		m.snap.acks.Add(1)
		m.acks.WithLabelValues(d.Action, result).Inc()
	}
}

func (m *Metrics) addItems(outcome string, n int) {
	if n > 0 {
		m.items.WithLabelValues(outcome).Add(float64(n))
	}
}

func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Cycles:      m.snap.cycles.Load(),
		CycleErrors: m.snap.cycleErrors.Load(),
		Admitted:    m.snap.admitted.Load(),
		Deduped:     m.snap.deduped.Load(),
		Limited:     m.snap.limited.Load(),
		Dropped:     m.snap.dropped.Load(),
		Delivered:   m.snap.delivered.Load(),
		Failed:      m.snap.failed.Load(),
		Acks:        m.snap.acks.Load(),
		AckFailures: m.snap.ackFailures.Load(),
	}
	if m.bus != nil {
		s.BusDropped = m.bus.Dropped()
	}
	return s
}
