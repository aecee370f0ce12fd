package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/queue"
)

type TargetLister interface {
	ListTargets(ctx context.Context) ([]domain.Target, error)
}

type Enqueuer interface {
	EnqueueUnique(ctx context.Context, targetID int64, source queue.Source) (queue.EnqueueResult, error)
}

// TickResult counts what one due-check pass did.
type TickResult struct {
	Evaluated int `json:"evaluated"`
	Due       int `json:"due"`
	Queued    int `json:"queued"`
	Skipped   int `json:"skipped"` // due, but a job was already in flight
	Blocked   int `json:"blocked"` // waiting on a captcha
	Invalid   int `json:"invalid"` // unparsable schedule
	Failed    int `json:"failed"`  // enqueue errors
}

// DueChecker finds targets whose schedule fires and queues one check each.
type DueChecker struct {
	targets TargetLister
	queue   Enqueuer
	now     func() time.Time
	loc     *time.Location
	logger  logger.Logger
}

// NewDueChecker creates a due checker. specific_times entries are read in loc
// (UTC when nil).
func NewDueChecker(targets TargetLister, q Enqueuer, now func() time.Time, loc *time.Location, log logger.Logger) *DueChecker {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &DueChecker{targets: targets, queue: q, now: now, loc: loc, logger: log}
}

// Tick evaluates every target once. Only listing failures abort the tick.
func (d *DueChecker) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult

	targets, err := d.targets.ListTargets(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list targets: %w", err)
	}

	now := d.now().In(d.loc)
	for i := range targets {
		t := &targets[i]
		res.Evaluated++

		if !t.Status.Schedulable() {
			res.Blocked++
			continue
		}

		due, err := t.Due(now)
		if err != nil {
			res.Invalid++
			d.logger.Warn("skipping target with invalid schedule",
				logger.Int64("target_id", t.ID),
				logger.String("url", t.URL),
				logger.Error(err))
			continue
		}
		if !due {
			continue
		}
		res.Due++

		out, err := d.queue.EnqueueUnique(ctx, t.ID, queue.SourceScheduler)
		if err != nil {
			res.Failed++
			d.logger.Error("failed to enqueue check",
				logger.Int64("target_id", t.ID),
				logger.Error(err))
			continue
		}
		if out.Skipped {
			res.Skipped++
			d.logger.Debug("check already queued",
				logger.Int64("target_id", t.ID))
			continue
		}
		res.Queued++
		d.logger.Info("queued check",
			logger.Int64("target_id", t.ID),
			logger.String("url", t.URL),
			logger.String("job_id", out.JobID))
	}

	if res.Due > 0 {
		d.logger.Info("due check completed",
			logger.Int("evaluated", res.Evaluated),
			logger.Int("due", res.Due),
			logger.Int("queued", res.Queued),
			logger.Int("skipped", res.Skipped),
			logger.Int("failed", res.Failed))
	} else {
		d.logger.Debug("no targets due", logger.Int("evaluated", res.Evaluated))
	}
	return res, nil
}
