// Package runner turns maintenance templates into requests, either on demand
// ("run now") or from the daily scheduled job.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"upkeep/internal/recurrence"
	"upkeep/internal/types"
)

// Notifier is told about every generated request after it is committed.
type Notifier interface {
	RequestGenerated(ctx context.Context, req *types.Request, tpl *types.Template) error
}

// IDGenerator produces request IDs. Tests inject deterministic IDs.
type IDGenerator func() string

// Config holds the dependencies for creating a Runner.
type Config struct {
	Templates types.TemplateRepository
	Tx        types.TxManager
	Notifier  Notifier
	Clock     types.Clock
	// Location is the timezone in which "today" is evaluated.
	Location *time.Location
	NewID    IDGenerator
	Logger   *slog.Logger
}

// Runner generates requests from templates.
type Runner struct {
	templates types.TemplateRepository
	tx        types.TxManager
	notifier  Notifier
	clock     types.Clock
	loc       *time.Location
	newID     IDGenerator
	logger    *slog.Logger
}

// New creates a Runner. Nil Clock, Location and Logger default to
// RealClock, UTC and slog.Default().
func New(cfg Config) *Runner {
	r := &Runner{
		templates: cfg.Templates,
		tx:        cfg.Tx,
		notifier:  cfg.Notifier,
		clock:     cfg.Clock,
		loc:       cfg.Location,
		newID:     cfg.NewID,
		logger:    cfg.Logger,
	}
	if r.clock == nil {
		r.clock = types.RealClock{}
	}
	if r.loc == nil {
		r.loc = time.UTC
	}
	if r.newID == nil {
		r.newID = types.NewRequestID
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Now returns the current instant in the schedule timezone.
func (r *Runner) Now() time.Time {
	return r.clock.Now().In(r.loc)
}

// Location returns the schedule timezone.
func (r *Runner) Location() *time.Location {
	return r.loc
}

// RunNow generates one request from the template immediately and returns the
// new request together with the stamped template.
//
// Flow:
//  1. Load the template (not_found_template if missing).
//  2. Inside one unit of work: create the request, then stamp
//     last_generated_date with today.
//  3. Notify the assignee (best effort).
//
// Store errors are returned unchanged. Inactive templates may still be run
// by hand.
func (r *Runner) RunNow(ctx context.Context, templateID string, actor types.Actor) (*types.Request, *types.Template, error) {
	tpl, err := r.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, nil, err
	}
	req, err := r.generate(ctx, tpl, actor, r.Now())
	if err != nil {
		return nil, nil, err
	}
	return req, tpl, nil
}

// Due returns the active templates that are due on the date of now in the
// schedule timezone.
func (r *Runner) Due(ctx context.Context, now time.Time) ([]*types.Template, error) {
	today := types.DateOf(now.In(r.loc))

	templates, err := r.templates.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	var due []*types.Template
	for _, tpl := range templates {
		if recurrence.IsDue(recurrence.FromTemplate(tpl, r.loc), today) {
			due = append(due, tpl)
		}
	}
	return due, nil
}

// RunDue generates a request for every active template that is due on the
// date of now (in the schedule timezone). A failure on one template does not
// stop the others; the number of generated requests is returned together
// with the joined errors.
func (r *Runner) RunDue(ctx context.Context, now time.Time) (int, error) {
	now = now.In(r.loc)
	today := types.DateOf(now)

	due, err := r.Due(ctx, now)
	if err != nil {
		return 0, err
	}

	var (
		generated int
		errs      []error
	)
	for _, tpl := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := r.generate(ctx, tpl, types.SystemActor(), now); err != nil {
			r.logger.ErrorContext(ctx, "template generation failed",
				"template_id", tpl.ID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("template %s: %w", tpl.ID, err))
			continue
		}
		generated++
	}

	r.logger.InfoContext(ctx, "scheduled generation finished",
		"date", today.String(),
		"due", len(due),
		"generated", generated,
		"failed", len(errs),
	)
	return generated, errors.Join(errs...)
}

// NextRun returns the next run date of tpl as seen now, or nil for an
// inactive template.
func (r *Runner) NextRun(tpl *types.Template) *types.Date {
	next, ok := recurrence.NextRunDate(recurrence.FromTemplate(tpl, r.loc), r.Now())
	if !ok {
		return nil
	}
	return next.Ptr()
}

func (r *Runner) generate(ctx context.Context, tpl *types.Template, actor types.Actor, now time.Time) (*types.Request, error) {
	today := types.DateOf(now)
	req := BuildRequest(tpl, actor, today)
	req.ID = r.newID()

	err := r.tx.RunInTx(ctx, func(ctx context.Context, repos types.GenerationRepos) error {
		if err := repos.Requests.Create(ctx, req); err != nil {
			return err
		}
		return repos.Templates.MarkGenerated(ctx, tpl.ID, today)
	})
	if err != nil {
		return nil, err
	}
	tpl.LastGeneratedDate = today

	r.logger.InfoContext(ctx, "request generated from template",
		"template_id", tpl.ID,
		"request_id", req.ID,
		"actor_id", actor.ID,
		"date", today.String(),
	)

	if r.notifier != nil {
		if err := r.notifier.RequestGenerated(ctx, req, tpl); err != nil {
			r.logger.WarnContext(ctx, "failed to enqueue notification",
				"request_id", req.ID,
				"error", err,
			)
		}
	}
	return req, nil
}

// BuildRequest copies the template's work description into a fresh open
// request due on the given date. Generated work is pre-approved.
func BuildRequest(tpl *types.Template, actor types.Actor, due types.Date) *types.Request {
	priority := tpl.Priority
	if priority == "" {
		priority = types.PriorityMedium
	}
	return &types.Request{
		Title:              tpl.Title,
		Description:        tpl.Description,
		AssetID:            tpl.AssetID,
		LocationID:         tpl.LocationID,
		TemplateID:         tpl.ID,
		Priority:           priority,
		Status:             types.RequestOpen,
		RequestedBy:        actor.ID,
		AssignedTo:         tpl.AssignedTo,
		DueDate:            due,
		EstimatedCostCents: tpl.EstimatedCostCents,
		ApprovalStatus:     types.ApprovalNotRequired,
	}
}
