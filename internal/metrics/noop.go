package metrics

import (
	"context"
	"log/slog"
	"time"

	"upkeep/internal/config"
	"upkeep/internal/notifications"
	"upkeep/internal/types"
)

// NoopCollector discards everything. Used when METRICS_ENABLED is false.
type NoopCollector struct{}

func (NoopCollector) RecordRequest(string, string, string, time.Duration) {}
func (NoopCollector) RecordDelivery(context.Context, types.NotificationKind, notifications.DeliveryResult) {
}
func (NoopCollector) RecordDeliveryLatency(context.Context, types.NotificationKind, time.Duration) {}
func (NoopCollector) RecordQueueLag(context.Context, time.Duration)                              {}
func (NoopCollector) RecordJob(context.Context, string, bool, int, time.Duration)                {}
func (NoopCollector) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Collector is the union of every recording interface plus the publish loop.
type Collector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
	notifications.Metrics
	RecordJob(ctx context.Context, task string, success bool, items int, d time.Duration)
	Run(ctx context.Context) error
}

// New returns a CloudWatchCollector when METRICS_ENABLED is set and a
// NoopCollector otherwise.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Collector, error) {
	if !cfg.Observability.MetricsEnabled {
		return NoopCollector{}, nil
	}
	return NewCloudWatchFromConfig(ctx, cfg, logger)
}
