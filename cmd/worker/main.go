// Package main runs the upkeep background worker: the cron scheduler that
// generates requests from due templates and purges delivered notifications,
// and the poller that drains the notification queue.
//
// Several replicas may run side by side. The per-day job lock lets exactly
// one of them execute each scheduled task, and the queue claim lets them
// share notification delivery.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"upkeep/internal/app"
	"upkeep/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	workerID := workerIdentity()
	logger.Info("upkeep worker starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"worker_id", workerID,
		"timezone", cfg.Schedule.Timezone,
	)

	cron, err := scheduler.NewCron(a.Dispatcher(workerID), a.CronEntries(), cfg.Schedule.Location(), a.Clock, logger.With("component", "cron"))
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	logger.Info("scheduler ready", "next_runs", cron.Next(a.Clock.Now()))

	notifier, err := a.NotificationWorker()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cron.Run(gctx) })
	g.Go(func() error { return notifier.Run(gctx) })
	g.Go(func() error { return a.Metrics.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("worker stopped cleanly")
	return nil
}

// workerIdentity names this process in job locks and history.
func workerIdentity() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
