package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/sources/seed"
)

type SeedStore interface {
	UpsertUser(ctx context.Context, u *domain.User) error
	UpsertTarget(ctx context.Context, t *domain.Target) error
}

// SeedResult counts what one reload wrote.
type SeedResult struct {
	Users   int `json:"users"`
	Targets int `json:"targets"`
	Failed  int `json:"failed"`
}

// SeedReloader handles periodic reloading of users and targets from the seed file
type SeedReloader struct {
	loader        *seed.Loader
	store         SeedStore
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewSeedReloader creates a new seed reloader. manualTrigger may be shared
// with the HTTP layer; a send on it forces a reload.
func NewSeedReloader(
	seedFile string,
	store SeedStore,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *SeedReloader {
	return &SeedReloader{
		loader:        seed.NewLoader(seedFile),
		store:         store,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start loads the file once, then reloads on every tick and manual trigger
func (sr *SeedReloader) Start(ctx context.Context) error {
	if _, err := sr.Reload(ctx); err != nil {
		return fmt.Errorf("initial seed load failed: %w", err)
	}

	ticker := time.NewTicker(sr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := sr.Reload(ctx); err != nil {
					sr.logger.Error("failed to reload seed file",
						logger.Error(err))
				}
			case <-sr.manualTrigger:
				sr.logger.Info("manual reload triggered")
				if _, err := sr.Reload(ctx); err != nil {
					sr.logger.Error("failed to reload seed file",
						logger.Error(err))
				}
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (sr *SeedReloader) Stop() {
	close(sr.stopCh)
}

// Reload reads the seed file and upserts everything in it. A file that does
// not validate writes nothing. Targets already in the store keep their
// status and last-checked time.
func (sr *SeedReloader) Reload(ctx context.Context) (SeedResult, error) {
	var res SeedResult

	sr.logger.Info("reloading seed file",
		logger.String("path", sr.loader.Path()))

	file, err := sr.loader.Load()
	if err != nil {
		return res, err
	}

	users, targets, err := seed.Map(file)
	if err != nil {
		return res, fmt.Errorf("invalid seed file: %w", err)
	}

	for _, u := range users {
		if err := sr.store.UpsertUser(ctx, u); err != nil {
			res.Failed++
			sr.logger.Warn("failed to save user",
				logger.String("user_id", u.ID),
				logger.Error(err))
			continue
		}
		res.Users++
	}

	for _, t := range targets {
		if err := sr.store.UpsertTarget(ctx, t); err != nil {
			res.Failed++
			sr.logger.Warn("failed to save target",
				logger.String("owner", t.OwnerID),
				logger.String("url", t.URL),
				logger.Error(err))
			continue
		}
		res.Targets++
	}

	sr.logger.Info("seed file loaded",
		logger.Int("users", res.Users),
		logger.Int("targets", res.Targets),
		logger.Int("failed", res.Failed))

	return res, nil
}
