package zabbix

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	for code := int64(1); code <= 5; code++ {
		s, err := ParseSeverity(code)
		if err != nil || int64(s) != code {
			t.Fatalf("ParseSeverity(%d)=%v,%v", code, s, err)
		}
	}
	for _, code := range []int64{0, 6, -1} {
		if _, err := ParseSeverity(code); !errors.Is(err, ErrInvalidSeverity) {
			t.Fatalf("ParseSeverity(%d) err=%v", code, err)
		}
	}
	if !(SeverityInfo < SeverityWarning && SeverityWarning < SeverityAverage && SeverityAverage < SeverityHigh && SeverityHigh < SeverityDisaster) {
		t.Fatalf("severity order broken")
	}
	if SeverityHigh.Urgency() != "critical" || SeverityWarning.Urgency() != "normal" || SeverityInfo.Urgency() != "low" {
		t.Fatalf("unexpected urgency mapping")
	}
}

func TestTolerantScalars(t *testing.T) {
	t.Parallel()

	var row problemRow
	in := `{"eventid":77,"name":"x","severity":" 3 ","clock":"","acknowledged":"true"}`
	if err := json.Unmarshal([]byte(in), &row); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if row.EventID != "77" || row.Severity != 3 || row.Clock != 0 || !bool(row.Acknowledged) {
		t.Fatalf("unexpected row %+v", row)
	}

	var b flexBool
	if err := json.Unmarshal([]byte(`"yes"`), &b); err == nil {
		t.Fatalf("expected error for invalid boolean")
	}
	var n flexInt
	if err := json.Unmarshal([]byte(`"12a"`), &n); err == nil {
		t.Fatalf("expected error for invalid integer")
	}
}

func TestHostMetaDisplayNameFallback(t *testing.T) {
	t.Parallel()

	s := func(v string) *string { return &v }
	cases := []struct {
		name string
		row  hostRow
		want string
	}{
		{"name wins", hostRow{Host: s("srv1"), Name: s("Server One")}, "Server One"},
		{"host fallback", hostRow{Host: s("srv1"), Name: s("")}, "srv1"},
		{"unknown", hostRow{}, UnknownHost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := newHostMeta(tc.row).DisplayName; got != tc.want {
				t.Fatalf("DisplayName=%q want %q", got, tc.want)
			}
		})
	}
}
