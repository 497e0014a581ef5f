package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	flag "github.com/spf13/pflag"

	"zbxbridge/internal/app"
	"zbxbridge/internal/config"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

type flags struct {
	cfgPath   string
	envFile   string
	once      bool
	interval  time.Duration
	maxNotif  int
	insecure  bool
	dryRun    bool
	jsonLogs  bool
	logFilter string
	version   bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		printChain(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("zbxbridge", flag.ContinueOnError)
	var f flags
	fs.StringVarP(&f.cfgPath, "config", "c", "", "path to a JSON or YAML config file (optional)")
	fs.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	fs.BoolVar(&f.once, "once", false, "run a single poll cycle and exit")
	fs.DurationVar(&f.interval, "interval", 0, "poll interval (overrides POLL_INTERVAL)")
	fs.IntVar(&f.maxNotif, "max-notif", 0, "max notifications per cycle, 1..100")
	fs.BoolVar(&f.insecure, "insecure", false, "allow http:// and skip TLS verification")
	fs.BoolVar(&f.dryRun, "dry-run", false, "log notifications instead of delivering them")
	fs.BoolVar(&f.jsonLogs, "json-logs", false, "write JSON logs to stdout")
	fs.StringVar(&f.logFilter, "log-filter", "", "log level (trace, debug, info, warn, error)")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if f.version {
		fmt.Println("zbxbridge", version)
		return nil
	}

	if err := config.LoadEnvFile(f.envFile, !fs.Changed("env-file")); err != nil {
		return err
	}
	cfgm := config.NewConfigManager(f.cfgPath, config.WithOverrides(overrides(fs, f)))
	cfg, err := cfgm.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgm, cfg, app.Options{Version: version})
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// overrides applies only the flags given on the command line, so they win
// over the file and the environment without masking them with zero values.
func overrides(fs *flag.FlagSet, f flags) func(*config.Config) {
	return func(c *config.Config) {
		if fs.Changed("once") {
			c.Poll.Once = f.once
		}
		if fs.Changed("interval") {
			c.Poll.Interval = config.Duration(f.interval)
		}
		if fs.Changed("max-notif") {
			c.Poll.MaxNotif = f.maxNotif
		}
		if fs.Changed("insecure") {
			c.Zabbix.Insecure = f.insecure
		}
		if fs.Changed("dry-run") {
			c.Notify.DryRun = f.dryRun
		}
		if fs.Changed("json-logs") {
			c.Logging.JSON = f.jsonLogs
		}
		if fs.Changed("log-filter") {
			c.Logging.Level = f.logFilter
		}
	}
}

// printChain writes err one layer per line, outermost first.
func printChain(w io.Writer, err error) {
	prefix := "error: "
	for err != nil {
		next := errors.UnwrapOnce(err)
		msg := err.Error()
		if next != nil {
			msg = strings.TrimSuffix(msg, ": "+next.Error())
		}
		if msg != "" && (next == nil || msg != next.Error()) {
			fmt.Fprintf(w, "%s%s\n", prefix, msg)
			prefix = "  caused by: "
		}
		err = next
	}
}
