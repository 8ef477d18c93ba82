// Package systemd reports service state to systemd. Every call is a no-op
// when the process was not started by systemd with NOTIFY_SOCKET set.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"mlsub/pkg/logx"
)

// sdNotify and watchdogEnabled are swapped in tests.
var (
	sdNotify        = daemon.SdNotify
	watchdogEnabled = daemon.SdWatchdogEnabled
)

func send(log logx.Logger, state string) bool {
	sent, err := sdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
	return sent
}

// Ready reports that startup finished.
func Ready(log logx.Logger) bool { return send(log, daemon.SdNotifyReady) }

// Stopping reports that shutdown began.
func Stopping(log logx.Logger) bool { return send(log, daemon.SdNotifyStopping) }

// Reloading reports a configuration reload. Call Ready when it is done.
func Reloading(log logx.Logger) bool { return send(log, daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func Status(log logx.Logger, msg string) bool { return send(log, "STATUS="+msg) }

// Watchdog pings the service manager at half the configured watchdog
// interval until ctx is done. It returns at once when no watchdog is
// configured for this process.
func Watchdog(ctx context.Context, log logx.Logger) {
	interval, err := watchdogEnabled(false)
	if err != nil {
		log.Warn("watchdog config invalid", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	every := interval / 2
	log.Info("watchdog enabled", logx.Duration("interval", interval))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			send(log, daemon.SdNotifyWatchdog)
		}
	}
}
