// Package app wires the shared dependency graph of the upkeep binaries:
// configuration, logging, the store, notifications, the template runner
// and the approval service. cmd/api, cmd/worker and cmd/tools/job-runner
// each take the pieces they need.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"upkeep/internal/approval"
	"upkeep/internal/auth"
	"upkeep/internal/config"
	"upkeep/internal/external"
	"upkeep/internal/metrics"
	"upkeep/internal/notifications"
	"upkeep/internal/runner"
	"upkeep/internal/scheduler"
	"upkeep/internal/store"
	"upkeep/internal/types"
)

// App holds the long-lived services of one process.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Clock         types.Clock
	Store         *store.Registry
	Metrics       metrics.Collector
	Notifier      *notifications.Notifier
	Runner        *runner.Runner
	Approvals     *approval.Service
	Authenticator *auth.TokenAuthenticator
}

// LoadConfig reads the configuration. _SSM_PARAM references are resolved
// from Parameter Store in AWS_REGION; the client is only created when such
// a reference exists.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// NewLogger creates a JSON slog.Logger for the given level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// New opens the store and builds the services on top of it. A nil clock
// uses the wall clock.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, clock types.Clock) (*App, error) {
	if clock == nil {
		clock = types.RealClock{}
	}

	reg, err := store.Open(ctx, cfg.Database, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	collector, err := metrics.New(ctx, cfg, logger.With("component", "metrics"))
	if err != nil {
		reg.Close()
		return nil, fmt.Errorf("creating metrics collector: %w", err)
	}

	return Wire(cfg, logger, clock, reg, collector), nil
}

// Wire builds the services over an already opened store. Tests call it with
// a memory registry.
func Wire(cfg *config.Config, logger *slog.Logger, clock types.Clock, reg *store.Registry, collector metrics.Collector) *App {
	if collector == nil {
		collector = metrics.NoopCollector{}
	}
	notifier := notifications.NewNotifier(reg.Notifications, reg.Users, nil, clock, logger.With("component", "notifier"))

	return &App{
		Config:   cfg,
		Logger:   logger,
		Clock:    clock,
		Store:    reg,
		Metrics:  collector,
		Notifier: notifier,
		Runner: runner.New(runner.Config{
			Templates: reg.Templates,
			Tx:        reg.Tx,
			Notifier:  notifier,
			Clock:     clock,
			Location:  cfg.Schedule.Location(),
			Logger:    logger.With("component", "runner"),
		}),
		Approvals: approval.NewService(approval.ServiceConfig{
			Requests: reg.Requests,
			Notifier: notifier,
			Clock:    clock,
			Logger:   logger.With("component", "approval"),
		}),
		Authenticator: auth.NewTokenAuthenticator(reg.Users, cfg.Security.AdminAPIKey, nil, logger.With("component", "auth")),
	}
}

// Dispatcher builds the job dispatcher. workerID identifies the lock holder.
func (a *App) Dispatcher(workerID string) *scheduler.Dispatcher {
	return scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Generator:     a.Runner,
		Notifications: a.Store.Notifications,
		Locks:         a.Store.JobLocks,
		History:       a.Store.JobHistory,
		Location:      a.Config.Schedule.Location(),
		LockTTL:       a.Config.Schedule.JobLockTTL,
		Retention:     a.Config.Schedule.NotificationRetention,
		WorkerID:      workerID,
		Metrics:       a.Metrics,
		Clock:         a.Clock,
		Logger:        a.Logger.With("component", "dispatcher"),
	})
}

// CronEntries returns the configured job schedules.
func (a *App) CronEntries() []scheduler.Entry {
	return []scheduler.Entry{
		{Task: scheduler.TaskGenerateRequests, Spec: a.Config.Schedule.GenerationCron},
		{Task: scheduler.TaskPurgeNotifications, Spec: a.Config.Schedule.CleanupCron},
	}
}

// NotificationWorker builds the email queue worker with the provider chosen
// by EMAIL_PROVIDER.
func (a *App) NotificationWorker() (*notifications.Worker, error) {
	provider, err := external.NewEmailProvider(a.Config.Email, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating email provider: %w", err)
	}
	n := a.Config.Notify
	policy := notifications.DefaultRetryPolicy
	policy.MaxAttempts = n.MaxAttempts
	if n.BaseDelay > 0 {
		policy.BaseDelay = n.BaseDelay
	}
	return notifications.NewWorker(notifications.WorkerConfig{
		Store:  a.Store.Notifications,
		Sender: provider,
		From: types.SenderIdentity{
			Name:    a.Config.Email.FromName,
			Address: a.Config.Email.FromAddress,
		},
		Policy:       policy,
		PollInterval: n.PollInterval,
		BatchSize:    n.BatchSize,
		Concurrency:  n.Concurrency,
		Metrics:      a.Metrics,
		Clock:        a.Clock,
		Logger:       a.Logger.With("component", "notification-worker"),
	}), nil
}

// Close releases the store.
func (a *App) Close() {
	a.Store.Close()
}
