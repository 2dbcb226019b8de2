package monitoring

import (
	"context"
	"log/slog"
	"time"
)

const HEALTHCHECK_TIMER = 15 * time.Second

// Prober is a backend that can be pinged.
type Prober interface {
	Ping(ctx context.Context) error
}

// MonitorCacheHealth pings the cache every interval until ctx is done and
// logs when it goes down or comes back. Pinging a disconnected valkey store
// also starts a redial, so the cache recovers even without traffic.
func MonitorCacheHealth(ctx context.Context, probe Prober, interval time.Duration) {
	if interval <= 0 {
		interval = HEALTHCHECK_TIMER
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			healthy = check(ctx, probe, interval, healthy)
		}
	}
}

func check(ctx context.Context, probe Prober, timeout time.Duration, wasHealthy bool) bool {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := probe.Ping(pingCtx)
	switch {
	case err != nil && wasHealthy:
		slog.Warn("[HealthCheck] Cache is unhealthy, requests bypass it",
			slog.String("error", err.Error()))
	case err == nil && !wasHealthy:
		slog.Info("[HealthCheck] Cache is healthy again")
	}
	return err == nil
}
