package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zbxbridge/internal/zabbix"
)

// Item is one admitted incident on its way to the renderers. It is built
// once by the poll loop and never modified afterwards.
type Item struct {
	Problem zabbix.Problem
	Host    *zabbix.HostMeta
	// OpenURL links to the incident in the monitoring UI; empty if no
	// template is configured.
	OpenURL string
	// Latency is the time between detection and admission. Valid only when
	// HasLatency is set (it is unset for clocks in the future).
	Latency    time.Duration
	HasLatency bool
}

func (it Item) HostName() string {
	if it.Host == nil || it.Host.DisplayName == "" {
		return zabbix.UnknownHost
	}
	return it.Host.DisplayName
}

// Summary is the one-line title: "High – web-01".
func (it Item) Summary() string {
	return it.Problem.Severity.String() + " – " + it.HostName()
}

// Body is "Event #123 [UNACK]" followed by the problem name.
func (it Item) Body() string {
	state := "UNACK"
	if it.Problem.Acknowledged {
		state = "ACK"
	}
	return fmt.Sprintf("Event #%s [%s]\n%s", it.Problem.EventID, state, strings.TrimSpace(it.Problem.Name))
}

func (it Item) Urgency() string { return it.Problem.Severity.Urgency() }

// AckFunc asks the monitoring API to acknowledge or unacknowledge an event.
// Renderers call it when an operator reacts to a rendered notification; it
// returns as soon as the request is scheduled.
type AckFunc func(ctx context.Context, eventID string, action zabbix.AckAction, message string) error

// Renderer delivers one item to an operator-facing sink.
type Renderer interface {
	Name() string
	Render(ctx context.Context, item Item, ack AckFunc) error
}

// Acknowledger performs the acknowledgement remote call.
type Acknowledger interface {
	Acknowledge(ctx context.Context, eventID string, action zabbix.AckAction, message string) error
}

// Config controls the queue and the delivery task.
type Config struct {
	QueueSize int
	// DryRun logs each item instead of rendering it.
	DryRun        bool
	RenderTimeout time.Duration
	AckTimeout    time.Duration
}

// DeliveryEvent is published on the bus for every consumed item.
type DeliveryEvent struct {
	EventID  string        `json:"eventid"`
	Severity string        `json:"severity"`
	Host     string        `json:"host"`
	Renderer string        `json:"renderer"`
	DryRun   bool          `json:"dry_run,omitempty"`
	Took     time.Duration `json:"took"`
	Error    string        `json:"error,omitempty"`
}

// DropEvent is published when an item could not be enqueued.
type DropEvent struct {
	EventID string `json:"eventid"`
	Reason  string `json:"reason"`
}

// AckEvent is published when an acknowledgement is requested and again
// when it completes.
type AckEvent struct {
	EventID string        `json:"eventid"`
	Action  string        `json:"action"`
	Message string        `json:"message,omitempty"`
	Error   string        `json:"error,omitempty"`
	Took    time.Duration `json:"took"`
}
