package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/notify"
	"github.com/MrSnakeDoc/pagewatch/internal/store/memory"
	redisstore "github.com/MrSnakeDoc/pagewatch/internal/store/redis"
)

type recordingDelivery struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (d *recordingDelivery) Deliver(_ context.Context, _ notify.Recipient, m notify.Message) []notify.Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, m)
	return []notify.Report{{Channel: notify.ChannelEmail, OK: false, Message: "smtp unreachable"}}
}

type summaryFixture struct {
	store    *memory.Store
	pending  *redisstore.Store
	delivery *recordingDelivery
}

func newSummaryFixture(t *testing.T) *summaryFixture {
	t.Helper()
	s := memory.New()
	u := domain.NewUser("alice")
	u.Email = "alice@example.com"
	u.Preference = domain.PreferenceSummary
	u.SummaryTimes = "09:00,18:00"
	if err := s.UpsertUser(context.Background(), u); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	immediate := domain.NewUser("bob")
	if err := s.UpsertUser(context.Background(), immediate); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	return &summaryFixture{
		store:    s,
		pending:  redisstore.NewStore(newRedisClient(t)),
		delivery: &recordingDelivery{},
	}
}

func (f *summaryFixture) aggregator(now time.Time) *SummaryAggregator {
	router := notify.NewRouter(f.store, f.pending, f.delivery, nil, nil, fixedClock(now), newTestLogger())
	return NewSummaryAggregator(f.store, f.store, f.pending, router, 10*time.Minute, fixedClock(now), time.UTC, newTestLogger())
}

// addPending stores a pending record the way the router does and pushes it.
func (f *summaryFixture) addPending(t *testing.T, url, summary string, at time.Time) int64 {
	t.Helper()
	ctx := context.Background()
	n := &domain.Notification{
		OwnerID:   "alice",
		Type:      domain.NotificationImmediate,
		Content:   summary,
		CreatedAt: at,
	}
	if err := f.store.CreateNotification(ctx, n); err != nil {
		t.Fatalf("CreateNotification() error = %v", err)
	}
	f.push(t, n.ID, url, summary, at)
	return n.ID
}

func (f *summaryFixture) push(t *testing.T, id int64, url, summary string, at time.Time) {
	t.Helper()
	err := f.pending.PushPending(context.Background(), "alice", domain.PendingEntry{
		NotificationID: id,
		TargetURL:      url,
		OwnerID:        "alice",
		Summary:        summary,
		ChangeDetected: true,
		Timestamp:      at,
	})
	if err != nil {
		t.Fatalf("PushPending() error = %v", err)
	}
}

func TestSummaryAggregatorSendsDueSummary(t *testing.T) {
	ctx := context.Background()
	f := newSummaryFixture(t)
	first := f.addPending(t, "https://a.example", "Price dropped", testNow.Add(-50*time.Minute))
	second := f.addPending(t, "https://b.example", "New banner", testNow.Add(-20*time.Minute))

	res, err := f.aggregator(testNow).Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	want := SummaryResult{Users: 1, Due: 1, Sent: 1, Items: 2}
	if res != want {
		t.Fatalf("Tick() = %+v, want %+v", res, want)
	}

	summary, err := f.store.LatestSummary(ctx, "alice")
	if err != nil {
		t.Fatalf("LatestSummary() error = %v", err)
	}
	if !summary.Sent || !summary.CreatedAt.Equal(testNow) {
		t.Errorf("summary = %+v", summary)
	}
	for _, want := range []string{
		"AI Website Monitor Summary for 09:05 UTC:",
		"- https://a.example (08:15): Price dropped",
		"- https://b.example (08:45): New banner",
	} {
		if !strings.Contains(summary.Content, want) {
			t.Errorf("summary content missing %q:\n%s", want, summary.Content)
		}
	}

	records, err := f.store.GetNotifications(ctx, []int64{first, second})
	if err != nil {
		t.Fatalf("GetNotifications() error = %v", err)
	}
	for _, r := range records {
		if !r.IncludedInSummary || r.SummaryID == nil || *r.SummaryID != summary.ID {
			t.Errorf("record %d not linked to summary: %+v", r.ID, r)
		}
	}

	// Delivery failed but the list is still trimmed.
	if n, _ := f.pending.PendingCount(ctx, "alice"); n != 0 {
		t.Errorf("pending entries left = %d, want 0", n)
	}
	if len(f.delivery.sent) != 1 || f.delivery.sent[0].Subject != "Website Change Summary - 09:05 UTC" {
		t.Errorf("delivered = %+v", f.delivery.sent)
	}

	// Same window again: nothing left to send.
	res, err = f.aggregator(testNow.Add(time.Minute)).Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if res.Sent != 0 || res.Empty != 1 {
		t.Errorf("repeat Tick() = %+v", res)
	}
}

func TestSummaryAggregatorNeverReselectsIncludedRecords(t *testing.T) {
	ctx := context.Background()
	f := newSummaryFixture(t)
	old := f.addPending(t, "https://a.example", "Old change", testNow.Add(-30*time.Minute))
	if _, err := f.aggregator(testNow).Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	evening := time.Date(2026, 3, 14, 18, 2, 0, 0, time.UTC)
	// A stale duplicate of the summarized record plus one fresh result.
	f.push(t, old, "https://a.example", "Old change", testNow.Add(-30*time.Minute))
	fresh := f.addPending(t, "https://c.example", "Stock back", evening.Add(-time.Hour))

	res, err := f.aggregator(evening).Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if res.Sent != 1 || res.Items != 1 {
		t.Fatalf("evening Tick() = %+v, want one item", res)
	}

	summary, err := f.store.LatestSummary(ctx, "alice")
	if err != nil {
		t.Fatalf("LatestSummary() error = %v", err)
	}
	if strings.Contains(summary.Content, "Old change") || !strings.Contains(summary.Content, "Stock back") {
		t.Errorf("evening summary = %q", summary.Content)
	}
	recs, _ := f.store.GetNotifications(ctx, []int64{fresh})
	if len(recs) != 1 || !recs[0].IncludedInSummary {
		t.Errorf("fresh record not included: %+v", recs)
	}
}

func TestSummaryAggregatorTrimsWhenNothingNew(t *testing.T) {
	ctx := context.Background()
	f := newSummaryFixture(t)

	// A summary already went out at 09:01; this record predates it.
	prior := &domain.Notification{OwnerID: "alice", Type: domain.NotificationSummary, Sent: true, CreatedAt: testNow.Add(-4 * time.Minute)}
	if err := f.store.CommitSummary(ctx, prior, nil); err != nil {
		t.Fatalf("CommitSummary() error = %v", err)
	}
	f.addPending(t, "https://a.example", "Before cutoff", testNow.Add(-10*time.Minute))
	f.push(t, 9999, "https://gone.example", "record deleted", testNow)

	res, err := f.aggregator(testNow).Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if res.Empty != 1 || res.Sent != 0 {
		t.Errorf("Tick() = %+v, want empty", res)
	}
	if n, _ := f.pending.PendingCount(ctx, "alice"); n != 0 {
		t.Errorf("pending entries left = %d, want 0", n)
	}
	if len(f.delivery.sent) != 0 {
		t.Errorf("nothing should be delivered, got %+v", f.delivery.sent)
	}
}

func TestSummaryAggregatorOutsideWindow(t *testing.T) {
	ctx := context.Background()
	f := newSummaryFixture(t)
	f.addPending(t, "https://a.example", "Waiting", testNow)

	later := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	res, err := f.aggregator(later).Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if res.Users != 1 || res.Due != 0 {
		t.Errorf("Tick() = %+v, want no due users", res)
	}
	if n, _ := f.pending.PendingCount(ctx, "alice"); n != 1 {
		t.Errorf("pending entries = %d, want 1 kept", n)
	}
}

func TestSummaryAggregatorStampsAfterIncludedRecords(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		clock func() time.Time
	}{
		{name: "fixed clock", clock: fixedClock(testNow)},
		{name: "clock advances during tick", clock: steppingClock(testNow, 20*time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSummaryFixture(t)
			late := f.addPending(t, "https://a.example", "Written mid-tick", testNow.Add(30*time.Second))

			agg := NewSummaryAggregator(f.store, f.store, f.pending,
				notify.NewRouter(f.store, f.pending, f.delivery, nil, nil, tt.clock, newTestLogger()),
				10*time.Minute, tt.clock, time.UTC, newTestLogger())
			if res, err := agg.Tick(ctx); err != nil || res.Items != 1 {
				t.Fatalf("Tick() = %+v, %v", res, err)
			}

			summary, err := f.store.LatestSummary(ctx, "alice")
			if err != nil {
				t.Fatalf("LatestSummary() error = %v", err)
			}
			recs, _ := f.store.GetNotifications(ctx, []int64{late})
			if len(recs) != 1 || !recs[0].IncludedInSummary {
				t.Fatalf("record not included: %+v", recs)
			}
			if !summary.CreatedAt.After(recs[0].CreatedAt) {
				t.Errorf("summary created %s, not after included record %s", summary.CreatedAt, recs[0].CreatedAt)
			}
		})
	}
}

// steppingClock returns start on the first call and advances by step on
// every later call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur := next
		next = next.Add(step)
		return cur
	}
}
