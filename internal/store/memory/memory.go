// Package memory is an in-process record store. It backs the test suites
// and STORE_DRIVER=memory for throwaway runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/store"
)

type Store struct {
	mu            sync.RWMutex
	targets       map[int64]*domain.Target
	users         map[string]*domain.User
	checks        map[int64]*domain.CheckRecord
	notifications map[int64]*domain.Notification
	nextID        int64
	now           func() time.Time
}

func New() *Store {
	return &Store{
		targets:       make(map[int64]*domain.Target),
		users:         make(map[string]*domain.User),
		checks:        make(map[int64]*domain.CheckRecord),
		notifications: make(map[int64]*domain.Notification),
		now:           time.Now,
	}
}

// WithClock sets the clock used for created-at defaults.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) ListTargets(context.Context) ([]domain.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Target, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, cloneTarget(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetTarget(_ context.Context, id int64) (*domain.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.targets[id]
	if !ok {
		return nil, fmt.Errorf("target %d: %w", id, store.ErrNotFound)
	}
	c := cloneTarget(t)
	return &c, nil
}

func (s *Store) UpsertTarget(_ context.Context, t *domain.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.targets {
		if existing.OwnerID == t.OwnerID && existing.URL == t.URL {
			t.ID = existing.ID
			t.Status = existing.Status
			t.LastChecked = existing.LastChecked
			t.LastError = existing.LastError
			if t.Status == domain.StatusCaptcha && !t.SameSettings(existing) {
				t.Status, t.LastError = domain.StatusActive, ""
			}
			t.CreatedAt = existing.CreatedAt
			c := cloneTarget(t)
			s.targets[t.ID] = &c
			return nil
		}
	}

	if t.ID == 0 {
		t.ID = s.id()
	} else if t.ID > s.nextID {
		s.nextID = t.ID
	}
	if t.Status == "" {
		t.Status = domain.StatusActive
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	c := cloneTarget(t)
	s.targets[t.ID] = &c
	return nil
}

func (s *Store) UpdateTargetState(_ context.Context, id int64, state store.TargetState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("target %d: %w", id, store.ErrNotFound)
	}
	t.Status = state.Status
	t.LastError = state.LastError
	if state.LastChecked != nil {
		lc := *state.LastChecked
		t.LastChecked = &lc
	}
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (s *Store) ListUsers(context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpsertUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *Store) CreateCheck(_ context.Context, c *domain.CheckRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.targets[c.TargetID]; !ok {
		return fmt.Errorf("target %d: %w", c.TargetID, store.ErrNotFound)
	}
	c.ID = s.id()
	cp := *c
	s.checks[c.ID] = &cp
	return nil
}

func (s *Store) LatestCheckWithScreenshot(_ context.Context, targetID int64) (*domain.CheckRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.CheckRecord
	for _, c := range s.checks {
		if c.TargetID != targetID || c.ScreenshotPath == "" {
			continue
		}
		if latest == nil || c.CheckedAt.After(latest.CheckedAt) ||
			(c.CheckedAt.Equal(latest.CheckedAt) && c.ID > latest.ID) {
			latest = c
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("screenshot check for target %d: %w", targetID, store.ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) ListChecks(_ context.Context, targetID int64, limit int) ([]domain.CheckRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CheckRecord
	for _, c := range s.checks {
		if c.TargetID == targetID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CheckedAt.Equal(out[j].CheckedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CheckedAt.After(out[j].CheckedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteChecksBefore(_ context.Context, cutoff time.Time) ([]domain.CheckRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []domain.CheckRecord
	for id, c := range s.checks {
		if c.CheckedAt.Before(cutoff) {
			removed = append(removed, *c)
			delete(s.checks, id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	return removed, nil
}

func (s *Store) CreateNotification(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n.ID = s.id()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	cp := *n
	s.notifications[n.ID] = &cp
	return nil
}

func (s *Store) GetNotifications(_ context.Context, ids []int64) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Notification, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.notifications[id]; ok {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *Store) LatestSummary(_ context.Context, ownerID string) (*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Notification
	for _, n := range s.notifications {
		if n.OwnerID != ownerID || n.Type != domain.NotificationSummary {
			continue
		}
		if latest == nil || n.CreatedAt.After(latest.CreatedAt) {
			latest = n
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("summary for %s: %w", ownerID, store.ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) CommitSummary(_ context.Context, summary *domain.Notification, includedIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything first so a failure leaves no partial write.
	for _, id := range includedIDs {
		if _, ok := s.notifications[id]; !ok {
			return fmt.Errorf("notification %d: %w", id, store.ErrNotFound)
		}
	}

	summary.ID = s.id()
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = s.now()
	}
	cp := *summary
	s.notifications[summary.ID] = &cp

	for _, id := range includedIDs {
		n := s.notifications[id]
		n.IncludedInSummary = true
		sid := summary.ID
		n.SummaryID = &sid
	}
	return nil
}

func cloneTarget(t *domain.Target) domain.Target {
	c := *t
	if t.LastChecked != nil {
		lc := *t.LastChecked
		c.LastChecked = &lc
	}
	if t.Keywords != nil {
		c.Keywords = append([]string(nil), t.Keywords...)
	}
	return c
}

var _ store.Store = (*Store)(nil)
