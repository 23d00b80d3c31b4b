package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/types"
)

type recordingExecutor struct {
	mu    sync.Mutex
	tasks []TaskType
	fired chan struct{}
}

func (e *recordingExecutor) Execute(_ context.Context, task TaskType, _ time.Time) (Result, error) {
	e.mu.Lock()
	e.tasks = append(e.tasks, task)
	e.mu.Unlock()
	select {
	case e.fired <- struct{}{}:
	default:
	}
	return Result{Task: task}, nil
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"1 0 * * *", false},
		{"30 3 * * *", false},
		{"0 1 0 * * *", false},
		{"@daily", false},
		{"@every 1h", false},
		{"not a spec", true},
		{"61 0 * * *", true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			_, err := ParseSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewCron_RejectsBadEntries(t *testing.T) {
	_, err := NewCron(&recordingExecutor{}, []Entry{{Task: TaskGenerateRequests, Spec: "bogus"}}, nil, nil, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate_requests")

	_, err = NewCron(&recordingExecutor{}, []Entry{{Task: "reindex", Spec: "@daily"}}, nil, nil, discardLogger())
	require.Error(t, err)
}

func TestCron_NextUsesScheduleTimezone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	c, err := NewCron(&recordingExecutor{}, []Entry{
		{Task: TaskGenerateRequests, Spec: "1 0 * * *"},
	}, ny, nil, discardLogger())
	require.NoError(t, err)

	// 2024-06-03 12:00 UTC is 08:00 in New York; next fire is 00:01 EDT
	// on June 4th, which is 04:01 UTC.
	next := c.Next(time.Date(2024, time.June, 3, 12, 0, 0, 0, time.UTC))
	require.Len(t, next, 1)
	assert.True(t, next[0].Equal(time.Date(2024, time.June, 4, 4, 1, 0, 0, time.UTC)), "got %s", next[0])
}

func TestCron_RunFiresAndStops(t *testing.T) {
	exec := &recordingExecutor{fired: make(chan struct{}, 1)}
	c, err := NewCron(exec, []Entry{
		{Task: TaskPurgeNotifications, Spec: "* * * * * *"},
	}, time.UTC, types.RealClock{}, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-exec.fired:
	case <-time.After(3 * time.Second):
		t.Fatal("cron entry did not fire")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	assert.Contains(t, exec.tasks, TaskPurgeNotifications)
}
