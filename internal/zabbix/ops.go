package zabbix

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/semaphore"

	logx "zbxbridge/pkg/logx"
)

// AckFilter selects incidents by acknowledgement state.
type AckFilter int

const (
	AckUnacked AckFilter = iota
	AckAcked
	AckAll
)

func (f AckFilter) String() string {
	switch f {
	case AckAcked:
		return "acked"
	case AckAll:
		return "all"
	default:
		return "unacked"
	}
}

// ParseAckFilter accepts "acked", "unacked" and "all" (case-insensitive).
func ParseAckFilter(s string) (AckFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unacked", "unack":
		return AckUnacked, nil
	case "acked", "ack":
		return AckAcked, nil
	case "all", "any":
		return AckAll, nil
	default:
		return 0, errors.Newf("invalid ack filter %q (want acked, unacked or all)", s)
	}
}

// AckAction is the acknowledgement mutation requested by an operator.
type AckAction int

const (
	ActionAck AckAction = iota
	ActionUnack
)

func (a AckAction) String() string {
	if a == ActionUnack {
		return "unack"
	}
	return "ack"
}

// Bits of event.acknowledge "action".
const (
	actionAcknowledge   = 2
	actionAddMessage    = 4
	actionUnacknowledge = 16
)

func ackActionCode(a AckAction, message string) int {
	code := actionAcknowledge
	if a == ActionUnack {
		code = actionUnacknowledge
	}
	if message != "" {
		code += actionAddMessage
	}
	return code
}

// ActiveIncidents lists unresolved problems, newest event first.
func (c *Client) ActiveIncidents(ctx context.Context, limit int, filter AckFilter) ([]Problem, error) {
	params := map[string]any{
		"output":    []string{"eventid", "name", "severity", "clock", "lastchange", "acknowledged"},
		"recent":    false,
		"limit":     limit,
		"sortfield": []string{"eventid"},
		"sortorder": "DESC",
	}
	switch filter {
	case AckAcked:
		params["acknowledged"] = true
	case AckUnacked:
		params["acknowledged"] = false
	}

	rows, err := call[[]problemRow](ctx, c, "problem.get", params)
	if err != nil {
		return nil, err
	}
	out := make([]Problem, 0, len(rows))
	for _, r := range rows {
		p, err := r.problem()
		if err != nil {
			return nil, &DecodeError{Method: "problem.get", Err: errors.Wrapf(err, "event %s", string(r.EventID))}
		}
		out = append(out, p)
	}
	return out, nil
}

// ResolveHosts looks up host metadata for each event id with at most
// concurrency lookups in flight. The result has one slot per id, in input
// order; a slot is nil when its lookup failed or could not start.
func (c *Client) ResolveHosts(ctx context.Context, ids []string, concurrency int) []*HostMeta {
	out := make([]*HostMeta, len(ids))
	if len(ids) == 0 {
		return out
	}
	sem := semaphore.NewWeighted(int64(max(concurrency, 1)))

	var wg sync.WaitGroup
	for i, id := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			c.log.Warn("host lookup not started", logx.String("eventid", id), logx.Err(err))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			meta, err := c.hostMeta(ctx, id)
			if err != nil {
				c.log.Warn("host lookup failed", logx.String("eventid", id), logx.Err(err))
				return
			}
			out[i] = meta
		}()
	}
	wg.Wait()
	return out
}

func (c *Client) hostMeta(ctx context.Context, eventID string) (*HostMeta, error) {
	params := map[string]any{
		"output":      []string{"eventid"},
		"selectHosts": []string{"host", "name", "status"},
		"eventids":    []string{eventID},
	}
	rows, err := call[[]eventHostsRow](ctx, c, "event.get", params)
	if err != nil {
		return nil, err
	}
	for _, ev := range rows {
		if len(ev.Hosts) > 0 {
			meta := newHostMeta(ev.Hosts[0])
			return &meta, nil
		}
	}
	return nil, nil
}

// Acknowledge acknowledges or unacknowledges an event, attaching message
// when it is not empty.
func (c *Client) Acknowledge(ctx context.Context, eventID string, action AckAction, message string) error {
	if strings.TrimSpace(eventID) == "" {
		return errors.New("acknowledge: empty event id")
	}
	message = strings.TrimSpace(message)
	params := map[string]any{
		"eventids": []string{eventID},
		"action":   ackActionCode(action, message),
	}
	if message != "" {
		params["message"] = message
	}
	var res struct {
		EventIDs []flexString `json:"eventids"`
	}
	if err := c.Call(ctx, "event.acknowledge", params, &res); err != nil {
		return errors.Wrapf(err, "%s event %s", action, eventID)
	}
	c.log.Info("event acknowledgement updated", logx.String("eventid", eventID), logx.String("action", action.String()))
	return nil
}
