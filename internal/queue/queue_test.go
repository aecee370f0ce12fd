package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	now := func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }
	return New(client, time.Hour, now), mr
}

func TestEnqueueUniqueSkipsPendingTarget(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	first, err := q.EnqueueUnique(ctx, 1, SourceScheduler)
	if err != nil {
		t.Fatalf("EnqueueUnique() error = %v", err)
	}
	if first.Skipped || first.JobID == "" {
		t.Fatalf("first enqueue = %+v, want queued", first)
	}

	second, err := q.EnqueueUnique(ctx, 1, SourceManual)
	if err != nil {
		t.Fatalf("EnqueueUnique() error = %v", err)
	}
	if !second.Skipped || second.JobID != first.JobID {
		t.Errorf("second enqueue = %+v, want skipped pointing at %s", second, first.JobID)
	}

	other, err := q.EnqueueUnique(ctx, 2, SourceScheduler)
	if err != nil || other.Skipped {
		t.Fatalf("other target = %+v, %v", other, err)
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 2 || pending[0].TargetID != 1 || pending[1].TargetID != 2 {
		t.Errorf("ListPending() = %+v", pending)
	}
}

func TestEnqueueUniqueConcurrent(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		queued int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := q.EnqueueUnique(ctx, 42, SourceScheduler)
			if err != nil {
				t.Errorf("EnqueueUnique() error = %v", err)
				return
			}
			if !res.Skipped {
				mu.Lock()
				queued++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if queued != 1 {
		t.Errorf("%d jobs queued, want exactly 1", queued)
	}
	depth, _ := q.Depth(ctx)
	if depth.Pending != 1 {
		t.Errorf("pending = %d, want 1", depth.Pending)
	}
}

func TestDequeueAckReleasesTarget(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	res, err := q.EnqueueUnique(ctx, 7, SourceScheduler)
	if err != nil {
		t.Fatalf("EnqueueUnique() error = %v", err)
	}

	job, err := q.Dequeue(ctx, 100*time.Millisecond)
	if err != nil || job == nil {
		t.Fatalf("Dequeue() = %v, %v", job, err)
	}
	if job.ID != res.JobID || job.TargetID != 7 {
		t.Errorf("Dequeue() = %+v", job)
	}

	// still in flight: fetchable and still deduplicated
	if _, err := q.Fetch(ctx, job.ID); err != nil {
		t.Errorf("Fetch() in flight error = %v", err)
	}
	if again, _ := q.EnqueueUnique(ctx, 7, SourceManual); !again.Skipped {
		t.Error("target should stay deduplicated while its job runs")
	}
	depth, _ := q.Depth(ctx)
	if depth.Pending != 0 || depth.Processing != 1 {
		t.Errorf("Depth() = %+v", depth)
	}

	if err := q.Ack(ctx, job); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}
	if _, err := q.Fetch(ctx, job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Fetch() after ack error = %v, want ErrJobNotFound", err)
	}
	depth, _ = q.Depth(ctx)
	if depth.Processing != 0 {
		t.Errorf("processing = %d after ack, want 0", depth.Processing)
	}

	next, err := q.EnqueueUnique(ctx, 7, SourceScheduler)
	if err != nil || next.Skipped {
		t.Errorf("EnqueueUnique() after ack = %+v, %v; want queued", next, err)
	}
}

func TestAcquireSharesDedupKey(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	lease, err := q.Acquire(ctx, 3)
	if err != nil || !lease.Acquired {
		t.Fatalf("Acquire() = %+v, %v", lease, err)
	}
	if res, _ := q.EnqueueUnique(ctx, 3, SourceScheduler); !res.Skipped || res.JobID != lease.Token {
		t.Errorf("EnqueueUnique() while leased = %+v", res)
	}
	if again, _ := q.Acquire(ctx, 3); again.Acquired || again.Holder != lease.Token {
		t.Errorf("second Acquire() = %+v", again)
	}

	if err := q.Release(ctx, lease); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	queued, err := q.EnqueueUnique(ctx, 3, SourceScheduler)
	if err != nil || queued.Skipped {
		t.Fatalf("EnqueueUnique() after release = %+v, %v", queued, err)
	}

	// A queued job blocks the lease, and releasing a failed lease is a no-op.
	blocked, err := q.Acquire(ctx, 3)
	if err != nil || blocked.Acquired || blocked.Holder != queued.JobID {
		t.Fatalf("Acquire() with queued job = %+v, %v", blocked, err)
	}
	if err := q.Release(ctx, blocked); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if res, _ := q.EnqueueUnique(ctx, 3, SourceManual); !res.Skipped || res.JobID != queued.JobID {
		t.Errorf("queued job lost its claim: %+v", res)
	}
}

func TestDedupKeyExpires(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t)

	if _, err := q.EnqueueUnique(ctx, 3, SourceScheduler); err != nil {
		t.Fatalf("EnqueueUnique() error = %v", err)
	}
	mr.FastForward(time.Hour + time.Second)

	res, err := q.EnqueueUnique(ctx, 3, SourceScheduler)
	if err != nil || res.Skipped {
		t.Errorf("EnqueueUnique() after ttl = %+v, %v; want queued", res, err)
	}
}

func TestRecoverRequeuesOrphans(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	for _, id := range []int64{1, 2} {
		if _, err := q.Enqueue(ctx, id, SourceScheduler); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if job, err := q.Dequeue(ctx, 100*time.Millisecond); err != nil || job == nil {
			t.Fatalf("Dequeue() = %v, %v", job, err)
		}
	}

	moved, err := q.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if moved != 2 {
		t.Errorf("Recover() moved %d, want 2", moved)
	}

	pending, _ := q.ListPending(ctx)
	if len(pending) != 2 || pending[0].TargetID != 1 {
		t.Errorf("ListPending() after recover = %+v", pending)
	}
}

func TestFetchUnknown(t *testing.T) {
	q, _ := newTestQueue(t)
	if _, err := q.Fetch(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Fetch() error = %v, want ErrJobNotFound", err)
	}
}

func TestQueueUnreachable(t *testing.T) {
	q, mr := newTestQueue(t)
	mr.Close()

	if _, err := q.EnqueueUnique(context.Background(), 1, SourceScheduler); err == nil {
		t.Error("EnqueueUnique() should report a transport error")
	}
}
