package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"upkeep/internal/types"
)

// Store is the repository surface the Worker drives.
type Store interface {
	ClaimDue(ctx context.Context, now time.Time, limit int, maxAttempts int, lease time.Duration) ([]*types.Notification, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkAttemptFailed(ctx context.Context, id string, errMsg string, nextAttempt time.Time, final bool) error
}

// Sender delivers one email. external.EmailProvider satisfies it.
type Sender interface {
	Send(ctx context.Context, input types.SendInput) (string, error)
}

// WorkerConfig holds the dependencies and tuning of a Worker.
type WorkerConfig struct {
	Store        Store
	Sender       Sender
	From         types.SenderIdentity
	Policy       RetryPolicy
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
	// Lease is how long a claimed row stays invisible to other pollers.
	Lease   time.Duration
	Metrics Metrics
	Clock   types.Clock
	Logger  *slog.Logger
}

// Worker polls the queue and delivers due notifications.
type Worker struct {
	cfg WorkerConfig
}

// NewWorker applies defaults: 60s poll, batch of 25, concurrency 4, a
// five minute lease and DefaultRetryPolicy.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = DefaultRetryPolicy
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Worker{cfg: cfg}
}

// Run polls until ctx is cancelled. A failed poll is logged and retried on
// the next tick.
func (w *Worker) Run(ctx context.Context) error {
	w.cfg.Logger.Info("notification worker started",
		"poll_interval", w.cfg.PollInterval.String(),
		"batch_size", w.cfg.BatchSize,
		"concurrency", w.cfg.Concurrency,
	)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
			w.cfg.Logger.ErrorContext(ctx, "notification poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			w.cfg.Logger.Info("notification worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// BatchResult summarises one poll.
type BatchResult struct {
	Claimed int
	Sent    int
	Retried int
	Failed  int
}

// ProcessBatch claims up to BatchSize due rows and delivers them with at
// most Concurrency sends in flight. Delivery failures are recorded on the
// row; only a failed claim is returned as an error.
func (w *Worker) ProcessBatch(ctx context.Context) (BatchResult, error) {
	now := w.cfg.Clock.Now()
	rows, err := w.cfg.Store.ClaimDue(ctx, now, w.cfg.BatchSize, w.cfg.Policy.MaxAttempts, w.cfg.Lease)
	if err != nil {
		return BatchResult{}, err
	}
	res := BatchResult{Claimed: len(rows)}
	if len(rows) == 0 {
		return res, nil
	}

	outcomes := make([]DeliveryResult, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for i, n := range rows {
		w.cfg.Metrics.RecordQueueLag(ctx, now.Sub(n.CreatedAt))
		g.Go(func() error {
			outcomes[i] = w.deliver(gctx, n)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch o {
		case ResultSent:
			res.Sent++
		case ResultRetried:
			res.Retried++
		case ResultFailed:
			res.Failed++
		}
	}
	w.cfg.Logger.InfoContext(ctx, "notification batch processed",
		"claimed", res.Claimed,
		"sent", res.Sent,
		"retried", res.Retried,
		"failed", res.Failed,
	)
	return res, nil
}

func (w *Worker) deliver(ctx context.Context, n *types.Notification) DeliveryResult {
	start := time.Now()
	msgID, sendErr := w.cfg.Sender.Send(ctx, types.SendInput{
		To:          n.Recipient,
		From:        w.cfg.From,
		Subject:     n.Subject,
		BodyText:    n.Body,
		ReferenceID: n.ID,
	})
	w.cfg.Metrics.RecordDeliveryLatency(ctx, n.Kind, time.Since(start))

	now := w.cfg.Clock.Now()
	log := w.cfg.Logger.With("notification_id", n.ID, "kind", string(n.Kind))

	if sendErr == nil {
		if err := w.cfg.Store.MarkSent(ctx, n.ID, now); err != nil {
			// The mail went out; the lease expiring would resend it.
			log.ErrorContext(ctx, "failed to mark notification sent", "provider_message_id", msgID, "error", err)
		}
		w.cfg.Metrics.RecordDelivery(ctx, n.Kind, ResultSent)
		return ResultSent
	}

	attempts := n.Attempts + 1
	final := w.cfg.Policy.Exhausted(attempts) || permanent(sendErr)
	next := now.Add(w.cfg.Policy.Delay(attempts))
	if err := w.cfg.Store.MarkAttemptFailed(ctx, n.ID, sendErr.Error(), next, final); err != nil {
		log.ErrorContext(ctx, "failed to record notification failure", "error", err)
	}

	result := ResultRetried
	if final {
		result = ResultFailed
		log.WarnContext(ctx, "notification failed permanently", "attempts", attempts, "error", sendErr)
	} else {
		log.InfoContext(ctx, "notification delivery failed, will retry",
			"attempts", attempts,
			"next_attempt_at", next,
			"error", sendErr,
		)
	}
	w.cfg.Metrics.RecordDelivery(ctx, n.Kind, result)
	return result
}

// permanent reports errors that no retry can fix.
func permanent(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeEmailBlocked
}
