package workers

import (
	"context"
	"log/slog"
	"time"

	"voynich/contract"
	"voynich/observability"
)

// TelemetryWorker logs a snapshot of registry occupancy and process health
// at a fixed interval. It observes, it never influences the fan-out path.
type TelemetryWorker struct {
	log      *slog.Logger
	monitor  *observability.Monitor
	registry contract.IRegistry
	interval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, monitor *observability.Monitor,
	registry contract.IRegistry, interval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{log: log, monitor: monitor, registry: registry, interval: interval}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rooms, sessions := w.registry.Stats()
			stats, err := w.monitor.Collect(rooms, sessions)
			if err != nil {
				w.log.Warn("Failed to collect self stats", "error", err)
				continue
			}
			w.log.Info("Telemetry",
				"rooms", stats.Rooms,
				"sessions", stats.Sessions,
				"rss_mb", stats.RSSBytes/1024/1024,
				"cpu_percent", stats.CPUPercent,
				"alloc_mb", stats.AllocMb,
				"num_gc", stats.NumGC)
		}
	}
}
