// Package main implements the job-runner CLI tool for invoking scheduled
// tasks directly, outside the worker's cron loop.
//
// This tool is intended for local development, manual backfilling and
// operational debugging. It goes through the same dispatcher as the worker,
// so it takes the per-day job lock and records job history.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=generate_requests
//	go run ./cmd/tools/job-runner --task=generate_requests --reference-time=2026-01-15T00:05:00Z
//	go run ./cmd/tools/job-runner --dry-run --task=generate_requests
//	go run ./cmd/tools/job-runner --list
//	go run ./cmd/tools/job-runner --history=20
//
// Configuration is read the same way as the API and worker (environment,
// .env via godotenv, _SSM_PARAM references).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"

	"upkeep/internal/app"
	"upkeep/internal/scheduler"
	"upkeep/internal/types"
)

type options struct {
	task    scheduler.TaskType
	refTime *time.Time
	list    bool
	dryRun  bool
	history int
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if opts.list {
		printAvailableTasks(os.Stdout)
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if opts.history > 0 {
		if err := printHistory(ctx, a, opts.history, os.Stdout); err != nil {
			logger.Error("listing job history failed", "error", err)
			a.Close()
			os.Exit(1)
		}
		return
	}

	if err := execute(ctx, a, opts, os.Stdout); err != nil {
		logger.Error("task execution failed",
			"task", string(opts.task),
			"error", err,
		)
		a.Close()
		os.Exit(1)
	}
}

// parseFlags validates the command line. --list needs no other flag.
func parseFlags(args []string, usage io.Writer) (options, error) {
	fs := flag.NewFlagSet("job-runner", flag.ContinueOnError)
	fs.SetOutput(usage)
	taskFlag := fs.String("task", "", "Task type to execute (e.g., generate_requests)")
	refTimeFlag := fs.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-01-15T00:05:00Z)")
	listFlag := fs.Bool("list", false, "List all available task types and exit")
	dryRunFlag := fs.Bool("dry-run", false, "Show what the task would touch without executing")
	historyFlag := fs.Int("history", 0, "Print the N most recent job runs and exit")

	fs.Usage = func() {
		fmt.Fprintf(usage, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(usage, "Invoke scheduled tasks directly.\n\n")
		fmt.Fprintf(usage, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(usage, "\nUse --list to see all available task types.\n")
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{list: *listFlag, dryRun: *dryRunFlag, history: *historyFlag}
	if opts.list {
		return opts, nil
	}
	if opts.history < 0 {
		return options{}, fmt.Errorf("--history must be positive")
	}
	if opts.history > 0 {
		return opts, nil
	}

	if *taskFlag == "" {
		return options{}, fmt.Errorf("--task is required")
	}
	opts.task = scheduler.TaskType(*taskFlag)
	if !opts.task.Valid() {
		return options{}, fmt.Errorf("unknown task type %q (use --list)", *taskFlag)
	}

	if *refTimeFlag != "" {
		t, err := time.Parse(time.RFC3339, *refTimeFlag)
		if err != nil {
			return options{}, fmt.Errorf("invalid --reference-time %q: expected RFC3339, e.g. 2026-01-15T00:05:00Z", *refTimeFlag)
		}
		opts.refTime = &t
	}
	return opts, nil
}

// execute runs or previews one task at the reference time, defaulting to
// the app clock.
func execute(ctx context.Context, a *app.App, opts options, out io.Writer) error {
	now := a.Clock.Now()
	if opts.refTime != nil {
		now = opts.refTime.UTC()
	}

	if opts.dryRun {
		return preview(ctx, a, opts.task, now, out)
	}

	workerID := fmt.Sprintf("job-runner-%s", uuid.New().String())
	a.Logger.Info("executing task",
		"task", string(opts.task),
		"reference_time", now.Format(time.RFC3339),
		"worker_id", workerID,
	)

	result, err := a.Dispatcher(workerID).Execute(ctx, opts.task, now)
	if err != nil {
		return err
	}
	if result.Skipped {
		fmt.Fprintf(out, "skipped: lock %s already taken\n", result.LockID)
		return nil
	}
	fmt.Fprintf(out, "task %s complete: %d items processed in %s\n", result.Task, result.Items, result.Elapsed)
	return nil
}

// preview lists the templates generation would run, or the purge cutoff.
func preview(ctx context.Context, a *app.App, task scheduler.TaskType, now time.Time, out io.Writer) error {
	switch task {
	case scheduler.TaskGenerateRequests:
		due, err := a.Runner.Due(ctx, now)
		if err != nil {
			return err
		}
		today := types.DateOf(now.In(a.Runner.Location()))
		fmt.Fprintf(out, "%d template(s) due on %s\n", len(due), today)
		for _, tpl := range due {
			fmt.Fprintf(out, "  %s  %s\n", tpl.ID, tpl.Title)
		}
	case scheduler.TaskPurgeNotifications:
		cutoff := now.Add(-a.Config.Schedule.NotificationRetention)
		fmt.Fprintf(out, "would delete notifications sent before %s\n", cutoff.Format(time.RFC3339))
	default:
		return fmt.Errorf("no preview for task %q", task)
	}
	return nil
}

func printHistory(ctx context.Context, a *app.App, limit int, out io.Writer) error {
	runs, err := a.Store.JobHistory.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no job runs recorded")
		return nil
	}
	for _, run := range runs {
		took := "-"
		if run.FinishedAt != nil {
			took = run.FinishedAt.Sub(run.StartedAt).String()
		}
		fmt.Fprintf(out, "%-6d %-22s %-8s items=%-4d took=%-10s %s\n",
			run.ID, run.JobType, run.Status, run.Items, took, run.StartedAt.Format(time.RFC3339))
		if run.Error != "" {
			fmt.Fprintf(out, "       error: %s\n", run.Error)
		}
	}
	return nil
}

func printAvailableTasks(out io.Writer) {
	fmt.Fprintf(out, "Available task types:\n\n")

	tasks := make([]scheduler.TaskType, 0, len(scheduler.Tasks))
	for t := range scheduler.Tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return string(tasks[i]) < string(tasks[j])
	})

	maxLen := 0
	for _, t := range tasks {
		if len(string(t)) > maxLen {
			maxLen = len(string(t))
		}
	}
	for _, t := range tasks {
		fmt.Fprintf(out, "  %-*s  %s\n", maxLen, t, scheduler.Tasks[t])
	}
}
