// Package store defines the record store used by the scheduler, the check
// pipeline and the notification layer.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
)

var ErrNotFound = errors.New("not found")

// TargetState is what the check pipeline writes back to a target.
type TargetState struct {
	Status      domain.Status
	LastError   string
	LastChecked *time.Time // nil leaves the column untouched
}

type Targets interface {
	ListTargets(ctx context.Context) ([]domain.Target, error)
	GetTarget(ctx context.Context, id int64) (*domain.Target, error)
	// UpsertTarget creates or updates a target keyed by (owner, url). Status
	// and last-checked of an existing row are preserved.
	UpsertTarget(ctx context.Context, t *domain.Target) error
	UpdateTargetState(ctx context.Context, id int64, state TargetState) error
}

type Users interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpsertUser(ctx context.Context, u *domain.User) error
}

type Checks interface {
	CreateCheck(ctx context.Context, c *domain.CheckRecord) error
	// LatestCheckWithScreenshot returns the newest record of the target that
	// has a screenshot, or ErrNotFound.
	LatestCheckWithScreenshot(ctx context.Context, targetID int64) (*domain.CheckRecord, error)
	ListChecks(ctx context.Context, targetID int64, limit int) ([]domain.CheckRecord, error)
	// DeleteChecksBefore removes records older than cutoff and returns them.
	DeleteChecksBefore(ctx context.Context, cutoff time.Time) ([]domain.CheckRecord, error)
}

type Notifications interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	GetNotifications(ctx context.Context, ids []int64) ([]domain.Notification, error)
	// LatestSummary returns the owner's newest summary record, or ErrNotFound.
	LatestSummary(ctx context.Context, ownerID string) (*domain.Notification, error)
	// CommitSummary inserts summary and marks every included record in one
	// transaction.
	CommitSummary(ctx context.Context, summary *domain.Notification, includedIDs []int64) error
}

// Store is the full record store.
type Store interface {
	Targets
	Users
	Checks
	Notifications
	Ping(ctx context.Context) error
	Close() error
}
