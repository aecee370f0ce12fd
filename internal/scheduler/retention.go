package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
)

const (
	// DefaultRetention is how long check records and their files are kept.
	DefaultRetention = 30 * 24 * time.Hour // 30 days
)

type CheckPruner interface {
	DeleteChecksBefore(ctx context.Context, cutoff time.Time) ([]domain.CheckRecord, error)
}

type FileRemover interface {
	Remove(paths ...string) (int, uint64)
}

// CleanupResult reports one retention pass.
type CleanupResult struct {
	Cutoff     time.Time `json:"cutoff"`
	Records    int       `json:"records_deleted"`
	Files      int       `json:"files_deleted"`
	BytesFreed uint64    `json:"bytes_freed"`
}

// Retention deletes old check records and their artifact files
type Retention struct {
	checks    CheckPruner
	files     FileRemover
	logger    logger.Logger
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time
	stopCh    chan struct{}
}

// NewRetention creates a new retention cleaner
func NewRetention(
	checks CheckPruner,
	files FileRemover,
	log logger.Logger,
	interval time.Duration,
	threshold time.Duration,
	now func() time.Time,
) *Retention {
	if threshold == 0 {
		threshold = DefaultRetention
	}
	if now == nil {
		now = time.Now
	}

	return &Retention{
		checks:    checks,
		files:     files,
		logger:    log,
		interval:  interval,
		threshold: threshold,
		now:       now,
		stopCh:    make(chan struct{}),
	}
}

// Start runs a pass immediately, then one per interval
func (r *Retention) Start(ctx context.Context) error {
	if _, err := r.Collect(ctx); err != nil {
		r.logger.Warn("initial retention cleanup failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := r.Collect(ctx); err != nil {
					r.logger.Error("retention cleanup failed",
						logger.Error(err))
				}
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the periodic cleanup
func (r *Retention) Stop() {
	close(r.stopCh)
}

// Collect removes records older than the threshold along with their files.
// Missing files are not an error.
func (r *Retention) Collect(ctx context.Context) (CleanupResult, error) {
	cutoff := r.now().Add(-r.threshold)
	res := CleanupResult{Cutoff: cutoff}

	r.logger.Info("running retention cleanup",
		logger.Time("cutoff", cutoff))

	deleted, err := r.checks.DeleteChecksBefore(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("failed to delete old checks: %w", err)
	}
	res.Records = len(deleted)

	var paths []string
	for i := range deleted {
		paths = append(paths, deleted[i].Artifacts()...)
	}
	if len(paths) > 0 && r.files != nil {
		res.Files, res.BytesFreed = r.files.Remove(paths...)
	}

	if res.Records > 0 {
		r.logger.Info("retention cleanup completed",
			logger.Int("records_deleted", res.Records),
			logger.Int("files_deleted", res.Files))
	} else {
		r.logger.Debug("no records to clean up")
	}

	return res, nil
}
