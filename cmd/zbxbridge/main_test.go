package main

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	flag "github.com/spf13/pflag"

	"zbxbridge/internal/config"
)

func TestPrintChain(t *testing.T) {
	t.Parallel()
	root := errors.New("connection refused")
	err := errors.Wrap(errors.Wrapf(root, "problem.get attempt %d", 3), "poll cycle")

	var buf bytes.Buffer
	printChain(&buf, err)
	want := "error: poll cycle\n  caused by: problem.get attempt 3\n  caused by: connection refused\n"
	if buf.String() != want {
		t.Fatalf("chain =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestOverridesOnlyChangedFlags(t *testing.T) {
	t.Parallel()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var f flags
	fs.IntVar(&f.maxNotif, "max-notif", 0, "")
	fs.BoolVar(&f.once, "once", false, "")
	fs.BoolVar(&f.dryRun, "dry-run", false, "")
	fs.DurationVar(&f.interval, "interval", 0, "")
	fs.BoolVar(&f.insecure, "insecure", false, "")
	fs.BoolVar(&f.jsonLogs, "json-logs", false, "")
	fs.StringVar(&f.logFilter, "log-filter", "", "")
	if err := fs.Parse([]string{"--max-notif=7", "--once"}); err != nil {
		t.Fatal(err)
	}

	c := &config.Config{}
	c.Notify.DryRun = true
	c.Logging.Level = "debug"
	overrides(fs, f)(c)
	if c.Poll.MaxNotif != 7 || !c.Poll.Once {
		t.Fatalf("flags not applied: %+v", c.Poll)
	}
	if !c.Notify.DryRun || c.Logging.Level != "debug" {
		t.Fatal("unset flags must not overwrite existing values")
	}
}

func TestRunVersion(t *testing.T) {
	t.Parallel()
	if err := run([]string{"--version"}); err != nil {
		t.Fatalf("run --version: %v", err)
	}
}
