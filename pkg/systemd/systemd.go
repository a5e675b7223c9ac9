// Package systemd sends service manager notifications. Every call is a no-op
// when the process was not started by systemd with NOTIFY_SOCKET set.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

func notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

// Ready reports startup completion.
func Ready() (bool, error) { return notify(daemon.SdNotifyReady) }

// Stopping reports that shutdown began.
func Stopping() (bool, error) { return notify(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func Status(s string) (bool, error) { return notify("STATUS=" + s) }

// WatchdogInterval returns the ping interval to use, or 0 when the unit has no watchdog.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog pings the service manager every interval until ctx ends.
func Watchdog(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := notify(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
