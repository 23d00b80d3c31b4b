package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/config"
	"upkeep/internal/scheduler"
	"upkeep/internal/store"
	"upkeep/internal/store/memory"
	"upkeep/internal/types"
)

var now = time.Date(2025, 3, 10, 0, 5, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Service:  "upkeep",
		Database: config.DatabaseConfig{Driver: "memory"},
		Schedule: config.ScheduleConfig{
			Timezone:              "UTC",
			GenerationCron:        "1 0 * * *",
			CleanupCron:           "30 3 * * *",
			JobLockTTL:            time.Hour,
			NotificationRetention: 30 * 24 * time.Hour,
		},
		Notify: config.NotifyConfig{
			PollInterval: time.Second,
			MaxAttempts:  3,
			BatchSize:    10,
			Concurrency:  2,
			BaseDelay:    time.Minute,
		},
		Email: config.EmailConfig{Provider: "log", FromAddress: "upkeep@example.com", FromName: "Upkeep"},
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	clock := types.FixedClock(now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := Wire(testConfig(), logger, clock, store.NewMemory(memory.New(clock)), nil)
	t.Cleanup(a.Close)
	return a
}

func TestNew_MemoryDriver(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), testConfig(), logger, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.NoError(t, a.Store.Ping(context.Background()))
	assert.NotNil(t, a.Runner)
	assert.NotNil(t, a.Approvals)
	assert.NotNil(t, a.Authenticator)
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Driver = "sqlite"
	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening store")
}

func TestCronEntries(t *testing.T) {
	a := newTestApp(t)
	entries := a.CronEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, scheduler.TaskGenerateRequests, entries[0].Task)
	assert.Equal(t, "1 0 * * *", entries[0].Spec)
	assert.Equal(t, scheduler.TaskPurgeNotifications, entries[1].Task)
}

// A due template flows through the dispatcher into a request, a queued email
// and a delivered email.
func TestDispatcherAndWorker_EndToEnd(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	tech := &types.User{
		ID:     types.NewUserID(),
		Email:  "tech@example.com",
		Name:   "Tech",
		Role:   types.RoleMaintenance,
		Active: true,
	}
	require.NoError(t, a.Store.Users.Create(ctx, tech))

	tpl := &types.Template{
		ID:              types.NewTemplateID(),
		Title:           "Inspect boiler",
		IntervalDays:    7,
		AllowedWeekdays: []int{},
		Priority:        types.PriorityMedium,
		AssignedTo:      tech.ID,
		IsActive:        true,
		CreatedAt:       now.AddDate(0, 0, -7),
	}
	require.NoError(t, a.Store.Templates.Create(ctx, tpl))

	res, err := a.Dispatcher("test-worker").Execute(ctx, scheduler.TaskGenerateRequests, now)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, res.Items)

	stored, err := a.Store.Templates.GetByID(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewDate(2025, time.March, 10), stored.LastGeneratedDate)

	worker, err := a.NotificationWorker()
	require.NoError(t, err)
	batch, err := worker.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Claimed)
	assert.Equal(t, 1, batch.Sent)

	// Same day again: the job lock turns the second run into a no-op.
	res, err = a.Dispatcher("other-worker").Execute(ctx, scheduler.TaskGenerateRequests, now)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestNotificationWorker_UnknownProvider(t *testing.T) {
	a := newTestApp(t)
	a.Config.Email.Provider = "carrier-pigeon"
	_, err := a.NotificationWorker()
	require.Error(t, err)
}
