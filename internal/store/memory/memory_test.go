package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/store"
)

func TestCommitSummaryIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { return now })

	n := &domain.Notification{OwnerID: "alice", Type: domain.NotificationImmediate, Content: "menu changed"}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatalf("CreateNotification() error = %v", err)
	}

	bad := &domain.Notification{OwnerID: "alice", Type: domain.NotificationSummary, Content: "digest"}
	if err := s.CommitSummary(ctx, bad, []int64{n.ID, 999}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("CommitSummary() error = %v, want ErrNotFound", err)
	}
	if _, err := s.LatestSummary(ctx, "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("failed commit left a summary behind: %v", err)
	}
	got, _ := s.GetNotifications(ctx, []int64{n.ID})
	if got[0].IncludedInSummary {
		t.Error("failed commit marked the notification as included")
	}

	sum := &domain.Notification{OwnerID: "alice", Type: domain.NotificationSummary, Content: "digest", Sent: true}
	if err := s.CommitSummary(ctx, sum, []int64{n.ID}); err != nil {
		t.Fatalf("CommitSummary() error = %v", err)
	}
	got, _ = s.GetNotifications(ctx, []int64{n.ID})
	if !got[0].IncludedInSummary || got[0].SummaryID == nil || *got[0].SummaryID != sum.ID {
		t.Errorf("notification after commit = %+v", got[0])
	}

	latest, err := s.LatestSummary(ctx, "alice")
	if err != nil {
		t.Fatalf("LatestSummary() error = %v", err)
	}
	if latest.ID != sum.ID || !latest.CreatedAt.Equal(now) {
		t.Errorf("LatestSummary() = %+v", latest)
	}
}

func TestChecksOrderingAndPruning(t *testing.T) {
	ctx := context.Background()
	s := New()
	target := &domain.Target{OwnerID: "alice", URL: "https://example.com", Policy: domain.PolicyInterval, PolicyValue: "60"}
	if err := s.UpsertTarget(ctx, target); err != nil {
		t.Fatalf("UpsertTarget() error = %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, shot := range []string{"a.png", "", "c.png"} {
		c := &domain.CheckRecord{TargetID: target.ID, CheckedAt: base.Add(time.Duration(i) * time.Hour), ScreenshotPath: shot}
		if err := s.CreateCheck(ctx, c); err != nil {
			t.Fatalf("CreateCheck() error = %v", err)
		}
	}
	if err := s.CreateCheck(ctx, &domain.CheckRecord{TargetID: 42}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("CreateCheck() on unknown target error = %v, want ErrNotFound", err)
	}

	prev, err := s.LatestCheckWithScreenshot(ctx, target.ID)
	if err != nil || prev.ScreenshotPath != "c.png" {
		t.Fatalf("LatestCheckWithScreenshot() = %+v, %v", prev, err)
	}

	list, _ := s.ListChecks(ctx, target.ID, 2)
	if len(list) != 2 || !list[0].CheckedAt.After(list[1].CheckedAt) {
		t.Errorf("ListChecks() = %+v, want two newest first", list)
	}

	removed, err := s.DeleteChecksBefore(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("DeleteChecksBefore() error = %v", err)
	}
	if len(removed) != 2 || removed[0].ScreenshotPath != "a.png" {
		t.Errorf("DeleteChecksBefore() removed %+v", removed)
	}
	if list, _ = s.ListChecks(ctx, target.ID, 0); len(list) != 1 {
		t.Errorf("%d checks left, want 1", len(list))
	}
}
