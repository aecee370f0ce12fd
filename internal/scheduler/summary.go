package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/notify"
	"github.com/MrSnakeDoc/pagewatch/internal/store"
	redisstore "github.com/MrSnakeDoc/pagewatch/internal/store/redis"
)

// DefaultSummaryWindow matches the summary tick interval.
const DefaultSummaryWindow = 10 * time.Minute

type UserLister interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
}

type PendingQueue interface {
	Drain(ctx context.Context, ownerID string) (redisstore.Batch, error)
	Trim(ctx context.Context, ownerID string, n int64) error
}

// SummaryComposer writes and delivers the aggregate message.
type SummaryComposer interface {
	ComposeSummary(ctx context.Context, at time.Time, items []notify.SummaryItem) string
	Deliver(ctx context.Context, u *domain.User, m notify.Message) []notify.Report
}

type SummaryResult struct {
	Users  int `json:"users"`  // users with a summary preference
	Due    int `json:"due"`    // users whose summary time fired
	Sent   int `json:"sent"`   // summaries committed
	Items  int `json:"items"`  // records folded into those summaries
	Empty  int `json:"empty"`  // due users with nothing new
	Failed int `json:"failed"` // users whose summary could not be built
}

// SummaryAggregator folds pending results into one message per user at the
// user's summary times.
type SummaryAggregator struct {
	users    UserLister
	records  store.Notifications
	pending  PendingQueue
	composer SummaryComposer
	window   time.Duration
	now      func() time.Time
	loc      *time.Location
	logger   logger.Logger
}

func NewSummaryAggregator(
	users UserLister,
	records store.Notifications,
	pending PendingQueue,
	composer SummaryComposer,
	window time.Duration,
	now func() time.Time,
	loc *time.Location,
	log logger.Logger,
) *SummaryAggregator {
	if window <= 0 {
		window = DefaultSummaryWindow
	}
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SummaryAggregator{
		users:    users,
		records:  records,
		pending:  pending,
		composer: composer,
		window:   window,
		now:      now,
		loc:      loc,
		logger:   log,
	}
}

// Tick sends the summaries that are due now. A failure for one user is
// logged and does not stop the others.
func (s *SummaryAggregator) Tick(ctx context.Context) (SummaryResult, error) {
	var res SummaryResult

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list users: %w", err)
	}

	now := s.now().In(s.loc)
	for i := range users {
		u := &users[i]
		if !u.Preference.Summary() {
			continue
		}
		res.Users++

		times, err := domain.ParseClockTimes(u.SummaryTimes)
		if err != nil {
			s.logger.Warn("skipping user with invalid summary times",
				logger.String("user_id", u.ID),
				logger.Error(err))
			continue
		}
		if _, ok := domain.MatchOccurrence(times, now, s.window); !ok {
			continue
		}
		res.Due++

		n, err := s.summarize(ctx, u, now)
		switch {
		case err != nil:
			res.Failed++
			s.logger.Error("failed to send summary",
				logger.String("user_id", u.ID),
				logger.Error(err))
		case n == 0:
			res.Empty++
		default:
			res.Sent++
			res.Items += n
		}
	}
	return res, nil
}

// summarize handles one user's pending list and returns how many records
// went into the summary.
func (s *SummaryAggregator) summarize(ctx context.Context, u *domain.User, now time.Time) (int, error) {
	batch, err := s.pending.Drain(ctx, u.ID)
	if err != nil {
		return 0, err
	}
	if batch.Len == 0 {
		return 0, nil
	}
	if batch.Invalid > 0 {
		s.logger.Warn("dropping undecodable pending entries",
			logger.String("user_id", u.ID),
			logger.Int("count", batch.Invalid))
	}

	items, included, err := s.collect(ctx, u.ID, batch.Entries)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, s.pending.Trim(ctx, u.ID, batch.Len)
	}

	content := s.composer.ComposeSummary(ctx, now, items)
	summary := &domain.Notification{
		OwnerID:   u.ID,
		Type:      domain.NotificationSummary,
		Content:   content,
		Sent:      true,
		CreatedAt: summaryStamp(s.now(), items),
	}
	if err := s.records.CommitSummary(ctx, summary, included); err != nil {
		return 0, fmt.Errorf("failed to commit summary: %w", err)
	}

	reports := s.composer.Deliver(ctx, u, notify.Message{
		Subject: notify.SummarySubject(now),
		Body:    content,
	})
	for _, r := range reports {
		if !r.OK {
			s.logger.Warn("summary delivery failed",
				logger.String("user_id", u.ID),
				logger.String("channel", r.Channel),
				logger.String("reason", r.Message))
		}
	}

	s.logger.Info("summary sent",
		logger.String("user_id", u.ID),
		logger.Int64("summary_id", summary.ID),
		logger.Int("items", len(items)))

	return len(items), s.pending.Trim(ctx, u.ID, batch.Len)
}

// summaryStamp returns the commit time of a summary, strictly later than
// every record it includes.
func summaryStamp(now time.Time, items []notify.SummaryItem) time.Time {
	for _, it := range items {
		if !now.After(it.At) {
			now = it.At.Add(time.Millisecond)
		}
	}
	return now
}

// collect resolves pending entries to records that have not been summarized
// yet and are newer than the user's last summary.
func (s *SummaryAggregator) collect(ctx context.Context, ownerID string, entries []domain.PendingEntry) ([]notify.SummaryItem, []int64, error) {
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.NotificationID)
	}
	records, err := s.records.GetNotifications(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load pending records: %w", err)
	}
	byID := make(map[int64]domain.Notification, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	var cutoff time.Time
	latest, err := s.records.LatestSummary(ctx, ownerID)
	switch {
	case err == nil:
		cutoff = latest.CreatedAt
	case !errors.Is(err, store.ErrNotFound):
		return nil, nil, fmt.Errorf("failed to load latest summary: %w", err)
	}

	var (
		items    []notify.SummaryItem
		included []int64
		seen     = make(map[int64]bool, len(entries))
	)
	for _, e := range entries {
		rec, ok := byID[e.NotificationID]
		if !ok || seen[rec.ID] || rec.IncludedInSummary {
			continue
		}
		if !cutoff.IsZero() && !rec.CreatedAt.After(cutoff) {
			continue
		}
		seen[rec.ID] = true
		included = append(included, rec.ID)
		items = append(items, notify.SummaryItem{
			URL:     e.TargetURL,
			At:      rec.CreatedAt,
			Summary: rec.Content,
		})
	}
	return items, included, nil
}
