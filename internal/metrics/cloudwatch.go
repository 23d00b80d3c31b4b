// Package metrics publishes operational telemetry to CloudWatch. Callers
// record through small interfaces owned by their own packages; this package
// implements all of them.
package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"upkeep/internal/config"
	"upkeep/internal/notifications"
	"upkeep/internal/types"
)

// Metric names.
const (
	MetricAPILatency      = "APILatency"
	MetricAPIRequestCount = "APIRequestCount"
	MetricDeliveryAttempt = "NotificationDelivery"
	MetricDeliveryLatency = "NotificationDeliveryLatency"
	MetricQueueLag        = "NotificationQueueLag"
	MetricJobDuration     = "JobDuration"
	MetricJobItems        = "JobItemsProcessed"
	MetricJobFailure      = "JobFailure"
)

const (
	maxDatumsPerPut      = 500
	defaultQueueSize     = 2048
	defaultFlushInterval = 15 * time.Second
	flushTimeout         = 5 * time.Second
)

// CloudWatchAPI is the subset of the CloudWatch client used here.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchCollector buffers datums and publishes them in batches from Run.
// Recording never blocks: when the buffer is full the datum is dropped.
type CloudWatchCollector struct {
	client        CloudWatchAPI
	namespace     string
	service       string
	queue         chan cwtypes.MetricDatum
	flushInterval time.Duration
	clock         types.Clock
	logger        *slog.Logger
}

// Option configures a CloudWatchCollector.
type Option func(*CloudWatchCollector)

// WithFlushInterval overrides how often buffered datums are published.
func WithFlushInterval(d time.Duration) Option {
	return func(c *CloudWatchCollector) { c.flushInterval = d }
}

// WithQueueSize overrides the buffer capacity.
func WithQueueSize(n int) Option {
	return func(c *CloudWatchCollector) { c.queue = make(chan cwtypes.MetricDatum, n) }
}

// WithClock overrides the timestamp source.
func WithClock(clock types.Clock) Option {
	return func(c *CloudWatchCollector) { c.clock = clock }
}

// NewCloudWatchCollector creates a collector. Every datum carries a Service
// dimension so the API and the worker can share one namespace.
func NewCloudWatchCollector(client CloudWatchAPI, namespace, service string, logger *slog.Logger, opts ...Option) *CloudWatchCollector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &CloudWatchCollector{
		client:        client,
		namespace:     namespace,
		service:       service,
		queue:         make(chan cwtypes.MetricDatum, defaultQueueSize),
		flushInterval: defaultFlushInterval,
		clock:         types.RealClock{},
		logger:        logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewCloudWatchFromConfig builds a collector with the default AWS credential
// chain. AWS_ENDPOINT_URL, when set, points the client at LocalStack.
func NewCloudWatchFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*CloudWatchCollector, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, err
	}
	client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	return NewCloudWatchCollector(client, cfg.Observability.MetricNamespace, cfg.Service, logger), nil
}

// Run publishes buffered datums every flush interval until ctx is done, then
// drains the buffer one last time.
func (c *CloudWatchCollector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			c.Flush(flushCtx)
			cancel()
			return nil
		case <-ticker.C:
			c.Flush(ctx)
		}
	}
}

// Flush publishes everything currently buffered.
func (c *CloudWatchCollector) Flush(ctx context.Context) {
	for {
		batch := c.drain(maxDatumsPerPut)
		if len(batch) == 0 {
			return
		}
		_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: batch,
		})
		if err != nil {
			c.logger.Warn("failed to publish metrics", "count", len(batch), "error", err)
			return
		}
	}
}

func (c *CloudWatchCollector) drain(max int) []cwtypes.MetricDatum {
	var batch []cwtypes.MetricDatum
	for len(batch) < max {
		select {
		case d := <-c.queue:
			batch = append(batch, d)
		default:
			return batch
		}
	}
	return batch
}

func (c *CloudWatchCollector) record(name string, value float64, unit cwtypes.StandardUnit, dims ...string) {
	dimensions := []cwtypes.Dimension{{Name: aws.String("Service"), Value: aws.String(c.service)}}
	for i := 0; i+1 < len(dims); i += 2 {
		dimensions = append(dimensions, cwtypes.Dimension{Name: aws.String(dims[i]), Value: aws.String(dims[i+1])})
	}
	datum := cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(c.clock.Now()),
		Dimensions: dimensions,
	}
	select {
	case c.queue <- datum:
	default:
		c.logger.Debug("metric buffer full, dropping datum", "metric", name)
	}
}

// RecordRequest implements core.MetricsCollector.
func (c *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	c.record(MetricAPILatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds,
		"Method", method, "Endpoint", endpoint)
	c.record(MetricAPIRequestCount, 1, cwtypes.StandardUnitCount,
		"Method", method, "Endpoint", endpoint, "Status", status)
}

// RecordDelivery implements notifications.Metrics.
func (c *CloudWatchCollector) RecordDelivery(_ context.Context, kind types.NotificationKind, result notifications.DeliveryResult) {
	c.record(MetricDeliveryAttempt, 1, cwtypes.StandardUnitCount, "Kind", string(kind), "Result", string(result))
}

// RecordDeliveryLatency implements notifications.Metrics.
func (c *CloudWatchCollector) RecordDeliveryLatency(_ context.Context, kind types.NotificationKind, d time.Duration) {
	c.record(MetricDeliveryLatency, float64(d.Milliseconds()), cwtypes.StandardUnitMilliseconds, "Kind", string(kind))
}

// RecordQueueLag implements notifications.Metrics.
func (c *CloudWatchCollector) RecordQueueLag(_ context.Context, lag time.Duration) {
	c.record(MetricQueueLag, float64(lag.Milliseconds()), cwtypes.StandardUnitMilliseconds)
}

// RecordJob implements scheduler.Metrics.
func (c *CloudWatchCollector) RecordJob(_ context.Context, task string, success bool, items int, d time.Duration) {
	c.record(MetricJobDuration, float64(d.Milliseconds()), cwtypes.StandardUnitMilliseconds,
		"Task", task, "Success", strconv.FormatBool(success))
	c.record(MetricJobItems, float64(items), cwtypes.StandardUnitCount, "Task", task)
	if !success {
		c.record(MetricJobFailure, 1, cwtypes.StandardUnitCount, "Task", task)
	}
}
