package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/queue"
	"github.com/MrSnakeDoc/pagewatch/internal/store/memory"
)

func seedTargets(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	addTarget(t, s, domain.Target{URL: "https://a.example", Policy: domain.PolicyInterval, PolicyValue: "60"})
	addTarget(t, s, domain.Target{URL: "https://b.example", Policy: domain.PolicyInterval, PolicyValue: "60",
		LastChecked: ptrTime(testNow.Add(-30 * time.Minute))})
	addTarget(t, s, domain.Target{URL: "https://c.example", Policy: domain.PolicySpecificTimes, PolicyValue: "09:00,18:00"})
	addTarget(t, s, domain.Target{URL: "https://d.example", Policy: domain.PolicyInterval, PolicyValue: "1",
		Status: domain.StatusCaptcha})
	addTarget(t, s, domain.Target{URL: "https://e.example", Policy: domain.PolicyInterval, PolicyValue: "often"})
	return s
}

func TestDueCheckerTick(t *testing.T) {
	ctx := context.Background()
	q := queue.New(newRedisClient(t), time.Hour, fixedClock(testNow))
	dc := NewDueChecker(seedTargets(t), q, fixedClock(testNow), time.UTC, newTestLogger())

	res, err := dc.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	want := TickResult{Evaluated: 5, Due: 2, Queued: 2, Blocked: 1, Invalid: 1}
	if res != want {
		t.Errorf("first Tick() = %+v, want %+v", res, want)
	}

	jobs, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("pending jobs = %d, want 2", len(jobs))
	}
	for _, j := range jobs {
		if j.Source != queue.SourceScheduler {
			t.Errorf("job source = %q", j.Source)
		}
	}

	// Nothing ran in between: the same targets are due but already queued.
	res, err = dc.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if res.Due != 2 || res.Queued != 0 || res.Skipped != 2 {
		t.Errorf("second Tick() = %+v, want 2 due all skipped", res)
	}
	if jobs, _ := q.ListPending(ctx); len(jobs) != 2 {
		t.Errorf("pending jobs after second tick = %d, want 2", len(jobs))
	}
}

func TestDueCheckerSpecificTimesUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	s := memory.New()
	addTarget(t, s, domain.Target{URL: "https://a.example", Policy: domain.PolicySpecificTimes, PolicyValue: "11:00"})

	q := queue.New(newRedisClient(t), time.Hour, fixedClock(testNow))

	// 09:05 UTC is 11:05 in loc.
	res, err := NewDueChecker(s, q, fixedClock(testNow), loc, newTestLogger()).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if res.Queued != 1 {
		t.Errorf("local occurrence not honoured: %+v", res)
	}

	res, err = NewDueChecker(s, queue.New(newRedisClient(t), time.Hour, nil), fixedClock(testNow), nil, newTestLogger()).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if res.Due != 0 {
		t.Errorf("UTC evaluation should not fire: %+v", res)
	}
}

type failingEnqueuer struct {
	calls int
}

func (f *failingEnqueuer) EnqueueUnique(context.Context, int64, queue.Source) (queue.EnqueueResult, error) {
	f.calls++
	return queue.EnqueueResult{}, errors.New("redis down")
}

func TestDueCheckerContinuesAfterEnqueueFailure(t *testing.T) {
	enq := &failingEnqueuer{}
	res, err := NewDueChecker(seedTargets(t), enq, fixedClock(testNow), time.UTC, newTestLogger()).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if enq.calls != 2 || res.Failed != 2 || res.Queued != 0 {
		t.Errorf("calls=%d result=%+v", enq.calls, res)
	}
}

type brokenLister struct{}

func (brokenLister) ListTargets(context.Context) ([]domain.Target, error) {
	return nil, errors.New("db gone")
}

func TestDueCheckerListFailure(t *testing.T) {
	_, err := NewDueChecker(brokenLister{}, &failingEnqueuer{}, fixedClock(testNow), nil, newTestLogger()).Tick(context.Background())
	if err == nil {
		t.Fatal("Tick() should fail when targets cannot be listed")
	}
}
