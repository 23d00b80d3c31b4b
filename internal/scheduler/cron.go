package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"upkeep/internal/types"
)

// specParser accepts five-field expressions, an optional leading seconds
// field and descriptors such as "@daily".
var specParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSpec validates a cron expression.
func ParseSpec(spec string) (cron.Schedule, error) {
	return specParser.Parse(spec)
}

// Executor runs one task. *Dispatcher satisfies it.
type Executor interface {
	Execute(ctx context.Context, task TaskType, now time.Time) (Result, error)
}

// Entry binds a task to a cron expression.
type Entry struct {
	Task TaskType
	Spec string
}

// Cron fires tasks on their schedules in the schedule timezone.
type Cron struct {
	cron     *cron.Cron
	executor Executor
	loc      *time.Location
	clock    types.Clock
	logger   *slog.Logger
	ctx      context.Context
}

// NewCron registers entries with a cron instance evaluating expressions in
// loc. Overlapping runs of the same entry are skipped and panics inside a
// job are recovered and logged.
func NewCron(executor Executor, entries []Entry, loc *time.Location, clock types.Clock, logger *slog.Logger) (*Cron, error) {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	c := &Cron{
		cron: cron.New(
			cron.WithParser(specParser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		executor: executor,
		loc:      loc,
		clock:    clock,
		logger:   logger,
		ctx:      context.Background(),
	}
	for _, e := range entries {
		if !e.Task.Valid() {
			return nil, fmt.Errorf("unknown task %q", e.Task)
		}
		task := e.Task
		if _, err := c.cron.AddFunc(e.Spec, func() { c.fire(task) }); err != nil {
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", e.Spec, task, err)
		}
	}
	return c, nil
}

func (c *Cron) fire(task TaskType) {
	if _, err := c.executor.Execute(c.ctx, task, c.clock.Now()); err != nil {
		c.logger.ErrorContext(c.ctx, "scheduled task failed",
			"task", task,
			"error", err,
		)
	}
}

// Run starts the cron loop and blocks until ctx is done. It then waits for
// running jobs to return before returning nil.
func (c *Cron) Run(ctx context.Context) error {
	c.ctx = ctx
	for _, e := range c.cron.Entries() {
		c.logger.InfoContext(ctx, "scheduled job registered",
			"entry_id", e.ID,
			"next", e.Schedule.Next(c.clock.Now().In(c.loc)).Format(time.RFC3339),
		)
	}
	c.cron.Start()
	<-ctx.Done()
	<-c.cron.Stop().Done()
	return nil
}

// Next returns the next fire time of each registered entry after now.
// Expressions without a TZ= prefix are evaluated in the schedule timezone.
func (c *Cron) Next(now time.Time) []time.Time {
	entries := c.cron.Entries()
	out := make([]time.Time, len(entries))
	for i, e := range entries {
		out[i] = e.Schedule.Next(now.In(c.loc))
	}
	return out
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
