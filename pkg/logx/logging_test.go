package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	for in, ok := range map[string]bool{
		"trace": true, "DEBUG": true, " info ": true, "warning": true, "error": true,
		"verbose": false, "": false,
	} {
		if _, got := ParseLevel(in); got != ok {
			t.Fatalf("ParseLevel(%q) ok = %v, want %v", in, got, ok)
		}
	}
}

func TestWriterLevelAndFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn").With(String("comp", "test"))
	log.Info("hidden")
	log.Warn("shown", Int("n", 3), Err(errors.New("boom")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %q", lines)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatal(err)
	}
	if m["message"] != "shown" || m["comp"] != "test" || m["n"] != float64(3) || m["err"] != "boom" {
		t.Fatalf("record = %v", m)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger must report IsZero")
	}
	l.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatal("Nop is not the zero value")
	}
}

func TestFormatChatLine(t *testing.T) {
	t.Parallel()
	got := formatChatLine([]byte(`{"level":"warn","time":"2024-01-01T00:00:00Z","message":"queue full","eventid":"77","a":1}` + "\n"))
	want := "[WARN] queue full\n- a=1\n- eventid=77"
	if got != want {
		t.Fatalf("formatChatLine =\n%s\nwant\n%s", got, want)
	}
	if got := formatChatLine([]byte("not json")); got != "not json" {
		t.Fatalf("fallback = %q", got)
	}
}
