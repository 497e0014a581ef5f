// Package systemd speaks the sd_notify protocol: readiness, stopping,
// status lines and watchdog keep-alives. Every call is a no-op when the
// process is not run by systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "zbxbridge/pkg/logx"
)

// Ready reports READY=1 with an optional status line.
func Ready(status string) (bool, error) {
	state := daemon.SdNotifyReady
	if status != "" {
		state += "\nSTATUS=" + status
	}
	return daemon.SdNotify(false, state)
}

// Stopping reports STOPPING=1.
func Stopping() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// Status updates the free-form status shown by systemctl status.
func Status(status string) (bool, error) {
	return daemon.SdNotify(false, "STATUS="+status)
}

// WatchdogInterval is the keep-alive period: half of WATCHDOG_USEC, or 0
// when the watchdog is not enabled for this process.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog sends WATCHDOG=1 every WatchdogInterval until ctx is done. alive
// gates each ping; a nil alive always pings.
func Watchdog(ctx context.Context, alive func() bool, log logx.Logger) error {
	every := WatchdogInterval()
	if every <= 0 {
		return nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log.Debug("systemd watchdog enabled", logx.Duration("interval", every))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if alive != nil && !alive() {
				log.Warn("skipping watchdog ping: not healthy")
				continue
			}
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Warn("watchdog ping failed", logx.Err(err))
			}
		}
	}
}
