package zabbix

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Severity is the ordered incident priority. The zero value is invalid.
type Severity int

const (
	SeverityInfo     Severity = 1
	SeverityWarning  Severity = 2
	SeverityAverage  Severity = 3
	SeverityHigh     Severity = 4
	SeverityDisaster Severity = 5
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "Info"
	case SeverityWarning:
		return "Warning"
	case SeverityAverage:
		return "Average"
	case SeverityHigh:
		return "High"
	case SeverityDisaster:
		return "Disaster"
	default:
		return "Severity(" + strconv.Itoa(int(s)) + ")"
	}
}

// Urgency maps a severity to a desktop-notification style urgency.
func (s Severity) Urgency() string {
	switch s {
	case SeverityDisaster, SeverityHigh:
		return "critical"
	case SeverityAverage, SeverityWarning:
		return "normal"
	default:
		return "low"
	}
}

// ParseSeverity converts a wire code. Codes outside 1..5 fail with
// ErrInvalidSeverity; code 0 ("not classified") is rejected as well.
func ParseSeverity(code int64) (Severity, error) {
	if code < int64(SeverityInfo) || code > int64(SeverityDisaster) {
		return 0, errors.Wrapf(ErrInvalidSeverity, "code %d", code)
	}
	return Severity(code), nil
}

// Problem is an active incident as reported by problem.get.
type Problem struct {
	EventID      string
	Clock        int64
	LastChange   int64
	Name         string
	Severity     Severity
	Acknowledged bool
}

// UnknownHost is the display name used when neither name nor host is known.
const UnknownHost = "<unknown host>"

// HostMeta is best-effort host information attached to a Problem.
type HostMeta struct {
	Host        *string
	DisplayName string
	// Status is 0 (monitored) or 1 (disabled); nil when not reported.
	Status *int
}

// Disabled reports whether the host is known to be disabled.
func (h *HostMeta) Disabled() bool {
	return h != nil && h.Status != nil && *h.Status == 1
}

func newHostMeta(r hostRow) HostMeta {
	meta := HostMeta{DisplayName: UnknownHost}
	if r.Host != nil && strings.TrimSpace(*r.Host) != "" {
		h := *r.Host
		meta.Host = &h
		meta.DisplayName = h
	}
	if r.Name != nil && strings.TrimSpace(*r.Name) != "" {
		meta.DisplayName = *r.Name
	}
	if r.Status != nil {
		st := int(*r.Status)
		meta.Status = &st
	}
	return meta
}

// ---- wire rows ----

type problemRow struct {
	EventID      flexString `json:"eventid"`
	Name         string     `json:"name"`
	Severity     flexInt    `json:"severity"`
	Clock        flexInt    `json:"clock"`
	LastChange   *flexInt   `json:"lastchange"`
	Acknowledged flexBool   `json:"acknowledged"`
}

func (r problemRow) problem() (Problem, error) {
	sev, err := ParseSeverity(int64(r.Severity))
	if err != nil {
		return Problem{}, err
	}
	p := Problem{
		EventID:      string(r.EventID),
		Clock:        int64(r.Clock),
		LastChange:   int64(r.Clock),
		Name:         r.Name,
		Severity:     sev,
		Acknowledged: bool(r.Acknowledged),
	}
	if r.LastChange != nil && *r.LastChange != 0 {
		p.LastChange = int64(*r.LastChange)
	}
	return p, nil
}

type hostRow struct {
	Host   *string  `json:"host"`
	Name   *string  `json:"name"`
	Status *flexInt `json:"status"`
}

type eventHostsRow struct {
	EventID flexString `json:"eventid"`
	Hosts   []hostRow  `json:"hosts"`
}

// ---- tolerant scalars ----

// flexInt accepts 123, "123" and "".
type flexInt int64

func (v *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*v = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*v = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer string %q", s)
		}
		*v = flexInt(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	i, err := n.Int64()
	if err != nil {
		return fmt.Errorf("invalid integer %s", n)
	}
	*v = flexInt(i)
	return nil
}

// flexBool accepts true/false, 0/1 and their string forms.
type flexBool bool

func (v *flexBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var raw string
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = false
		return nil
	case len(b) > 0 && b[0] == '"':
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	default:
		raw = string(b)
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true":
		*v = true
	case "0", "false", "":
		*v = false
	default:
		return fmt.Errorf("invalid boolean %q", raw)
	}
	return nil
}

// flexString accepts a JSON string or number.
type flexString string

func (v *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = flexString(n.String())
	return nil
}
