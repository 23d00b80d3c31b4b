package notifications

import (
	"context"
	"time"

	"upkeep/internal/types"
)

// DeliveryResult categorises one delivery attempt for metrics.
type DeliveryResult string

const (
	ResultSent    DeliveryResult = "sent"
	ResultRetried DeliveryResult = "retried"
	ResultFailed  DeliveryResult = "failed"
)

// Metrics receives delivery telemetry. Implementations must not block.
type Metrics interface {
	RecordDelivery(ctx context.Context, kind types.NotificationKind, result DeliveryResult)
	RecordDeliveryLatency(ctx context.Context, kind types.NotificationKind, d time.Duration)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordDelivery(context.Context, types.NotificationKind, DeliveryResult) {}
func (noopMetrics) RecordDeliveryLatency(context.Context, types.NotificationKind, time.Duration) {}
func (noopMetrics) RecordQueueLag(context.Context, time.Duration)                              {}
