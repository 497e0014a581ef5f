package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Duration is a time.Duration that reads "30s"-style strings. A bare JSON
// number is taken as seconds.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = 0
		return nil
	}
	if len(b) > 0 && b[0] != '"' {
		var secs float64
		if err := json.Unmarshal(b, &secs); err != nil {
			return errors.Wrap(err, "duration")
		}
		if secs < 0 {
			return errors.New("duration must be >= 0")
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseDurationField("duration", s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// ParseDurationField parses raw; empty means zero. Negative values are
// rejected. path names the field in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "%s: invalid duration %q", path, raw)
	}
	if d < 0 {
		return 0, errors.Newf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// parseEnvDuration accepts a Go duration or a plain number of seconds.
func parseEnvDuration(name, raw string) (Duration, error) {
	var d Duration
	s := strings.TrimSpace(raw)
	if s != "" && !strings.ContainsAny(s, "hmsuµn") {
		if err := d.UnmarshalJSON([]byte(s)); err != nil {
			return 0, errors.Wrapf(err, "%s", name)
		}
		return d, nil
	}
	v, err := ParseDurationField(name, s)
	return Duration(v), err
}
