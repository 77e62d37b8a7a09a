// Package systemd reports mbtoold's lifecycle to systemd (Type=notify).
//
// mbtoold notifies READY=1 once its socket is listening, so socket clients
// started After= the unit never see a missing socket, and STOPPING=1 when it
// begins shutdown. When WatchdogSec is set, the daemon pings the watchdog
// while its health check passes. Every call degrades to a no-op outside
// systemd.
package systemd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

func notify(state, name string) bool {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		slog.Warn("failed to send systemd notification", "state", name, "error", err)
		return false
	}
	if sent {
		slog.Debug("sent systemd notification", "state", name)
	}
	return sent
}

// NotifyReady sends READY=1. It reports whether the notification was sent.
func NotifyReady() bool {
	return notify(daemon.SdNotifyReady, "ready")
}

// NotifyStopping sends STOPPING=1.
func NotifyStopping() bool {
	return notify(daemon.SdNotifyStopping, "stopping")
}

// HealthCheckFunc returns true while the service is healthy.
type HealthCheckFunc func() bool

// StartWatchdog pings the watchdog every half interval until ctx is done,
// skipping pings while healthCheck fails. It returns at once if the
// watchdog is not enabled for this process.
func StartWatchdog(ctx context.Context, healthCheck HealthCheckFunc) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		slog.Debug("systemd watchdog disabled")
		return
	}

	ping := interval / 2
	slog.Info("starting systemd watchdog", "watchdog_interval", interval, "ping_interval", ping)
	go watchdogLoop(ctx, ping, healthCheck)
}

func watchdogLoop(ctx context.Context, interval time.Duration, healthCheck HealthCheckFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !healthCheck() {
				slog.Warn("health check failed, skipping watchdog ping")
				continue
			}
			notify(daemon.SdNotifyWatchdog, "watchdog")
		}
	}
}

// IsRunningUnderSystemd reports whether NOTIFY_SOCKET is set.
func IsRunningUnderSystemd() bool {
	return os.Getenv("NOTIFY_SOCKET") != ""
}
