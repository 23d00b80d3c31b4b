package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/config"
	"upkeep/internal/notifications"
	"upkeep/internal/types"
)

type fakeCloudWatch struct {
	mu    sync.Mutex
	calls []*cloudwatch.PutMetricDataInput
	err   error
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func (f *fakeCloudWatch) datums() []cwtypes.MetricDatum {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []cwtypes.MetricDatum
	for _, c := range f.calls {
		out = append(out, c.MetricData...)
	}
	return out
}

func dims(d cwtypes.MetricDatum) map[string]string {
	m := make(map[string]string, len(d.Dimensions))
	for _, dim := range d.Dimensions {
		m[aws.ToString(dim.Name)] = aws.ToString(dim.Value)
	}
	return m
}

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestCollector(client CloudWatchAPI, opts ...Option) *CloudWatchCollector {
	opts = append([]Option{WithClock(types.FixedClock(testNow))}, opts...)
	return NewCloudWatchCollector(client, "Upkeep", "upkeep-api", nil, opts...)
}

func TestRecordRequest(t *testing.T) {
	fake := &fakeCloudWatch{}
	c := newTestCollector(fake)

	c.RecordRequest("GET", "/v1/requests", "200", 42*time.Millisecond)
	c.Flush(context.Background())

	require.Len(t, fake.calls, 1)
	assert.Equal(t, "Upkeep", aws.ToString(fake.calls[0].Namespace))

	got := fake.datums()
	require.Len(t, got, 2)

	assert.Equal(t, MetricAPILatency, aws.ToString(got[0].MetricName))
	assert.Equal(t, 42.0, aws.ToFloat64(got[0].Value))
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, got[0].Unit)
	assert.Equal(t, testNow, aws.ToTime(got[0].Timestamp))
	assert.Equal(t, map[string]string{
		"Service": "upkeep-api", "Method": "GET", "Endpoint": "/v1/requests",
	}, dims(got[0]))

	assert.Equal(t, MetricAPIRequestCount, aws.ToString(got[1].MetricName))
	assert.Equal(t, "200", dims(got[1])["Status"])
}

func TestNotificationMetrics(t *testing.T) {
	fake := &fakeCloudWatch{}
	c := newTestCollector(fake)
	ctx := context.Background()

	c.RecordDelivery(ctx, types.NotifyApprovalRequested, notifications.ResultRetried)
	c.RecordDeliveryLatency(ctx, types.NotifyApprovalRequested, 250*time.Millisecond)
	c.RecordQueueLag(ctx, 3*time.Second)
	c.Flush(ctx)

	got := fake.datums()
	require.Len(t, got, 3)
	assert.Equal(t, MetricDeliveryAttempt, aws.ToString(got[0].MetricName))
	assert.Equal(t, string(notifications.ResultRetried), dims(got[0])["Result"])
	assert.Equal(t, string(types.NotifyApprovalRequested), dims(got[0])["Kind"])
	assert.Equal(t, 250.0, aws.ToFloat64(got[1].Value))
	assert.Equal(t, MetricQueueLag, aws.ToString(got[2].MetricName))
	assert.Equal(t, 3000.0, aws.ToFloat64(got[2].Value))
}

func TestRecordJob_FailureAddsFailureMetric(t *testing.T) {
	fake := &fakeCloudWatch{}
	c := newTestCollector(fake)

	c.RecordJob(context.Background(), "generate_requests", true, 4, time.Second)
	c.Flush(context.Background())
	assert.Len(t, fake.datums(), 2)

	fake.calls = nil
	c.RecordJob(context.Background(), "generate_requests", false, 0, time.Second)
	c.Flush(context.Background())
	got := fake.datums()
	require.Len(t, got, 3)
	assert.Equal(t, MetricJobFailure, aws.ToString(got[2].MetricName))
	assert.Equal(t, "false", dims(got[0])["Success"])
}

func TestRecord_DropsWhenBufferFull(t *testing.T) {
	fake := &fakeCloudWatch{}
	c := newTestCollector(fake, WithQueueSize(1))

	c.RecordQueueLag(context.Background(), time.Second)
	c.RecordQueueLag(context.Background(), 2*time.Second)
	c.Flush(context.Background())

	got := fake.datums()
	require.Len(t, got, 1)
	assert.Equal(t, 1000.0, aws.ToFloat64(got[0].Value))
}

func TestFlush_SplitsLargeBatches(t *testing.T) {
	fake := &fakeCloudWatch{}
	c := newTestCollector(fake)

	for i := 0; i < maxDatumsPerPut+10; i++ {
		c.RecordQueueLag(context.Background(), time.Millisecond)
	}
	c.Flush(context.Background())

	require.Len(t, fake.calls, 2)
	assert.Len(t, fake.calls[0].MetricData, maxDatumsPerPut)
	assert.Len(t, fake.calls[1].MetricData, 10)
}

func TestFlush_StopsOnError(t *testing.T) {
	fake := &fakeCloudWatch{err: errors.New("throttled")}
	c := newTestCollector(fake)

	for i := 0; i < maxDatumsPerPut+1; i++ {
		c.RecordQueueLag(context.Background(), time.Millisecond)
	}
	c.Flush(context.Background())

	assert.Len(t, fake.calls, 1)
}

func TestRun_FlushesOnShutdown(t *testing.T) {
	fake := &fakeCloudWatch{}
	c := newTestCollector(fake, WithFlushInterval(time.Hour))
	c.RecordQueueLag(context.Background(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Len(t, fake.datums(), 1)
}

func TestNew_DisabledReturnsNoop(t *testing.T) {
	cfg := &config.Config{}
	c, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, NoopCollector{}, c)
}
