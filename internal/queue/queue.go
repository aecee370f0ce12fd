// Package queue is the Redis-backed work queue of check jobs. Jobs move
// from the pending list to the processing list when a worker takes them and
// leave it on Ack, which gives at-least-once delivery.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPending    = "pagewatch:queue:pending"
	keyProcessing = "pagewatch:queue:processing"
	keyJobs       = "pagewatch:queue:jobs"
	keyDedup      = "pagewatch:queue:target:"

	// DefaultDedupTTL bounds how long a crashed worker can pin a target.
	DefaultDedupTTL = time.Hour
)

var ErrJobNotFound = errors.New("job not found")

// Source says who asked for a job.
type Source string

const (
	SourceScheduler Source = "scheduler"
	SourceManual    Source = "manual"
)

// Job is one check request for one target.
type Job struct {
	ID         string    `json:"id"`
	TargetID   int64     `json:"target_id"`
	Source     Source    `json:"source"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	raw string // payload as stored, set by Dequeue
}

// EnqueueResult reports whether EnqueueUnique queued a new job. When
// Skipped is true JobID is the job already holding the target.
type EnqueueResult struct {
	JobID   string `json:"job_id"`
	Skipped bool   `json:"skipped"`
}

// Depth is the number of jobs per list.
type Depth struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
}

// enqueueUnique sets the per-target dedup key, records the job and pushes
// it, unless the key already exists.
//
// KEYS[1] dedup key, KEYS[2] jobs hash, KEYS[3] pending list
// ARGV[1] job id, ARGV[2] job payload, ARGV[3] dedup ttl in seconds
var enqueueUnique = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
	return {0, existing}
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', tonumber(ARGV[3]))
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('RPUSH', KEYS[3], ARGV[2])
return {1, ARGV[1]}
`)

type Queue struct {
	client   *redis.Client
	dedupTTL time.Duration
	now      func() time.Time
}

func New(client *redis.Client, dedupTTL time.Duration, now func() time.Time) *Queue {
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Queue{client: client, dedupTTL: dedupTTL, now: now}
}

func dedupKey(targetID int64) string {
	return keyDedup + strconv.FormatInt(targetID, 10)
}

func (q *Queue) newJob(targetID int64, source Source) (Job, []byte, error) {
	job := Job{
		ID:         uuid.NewString(),
		TargetID:   targetID,
		Source:     source,
		EnqueuedAt: q.now().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return Job{}, nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return job, data, nil
}

// Enqueue pushes a job without any dedup check.
func (q *Queue) Enqueue(ctx context.Context, targetID int64, source Source) (Job, error) {
	job, data, err := q.newJob(targetID, source)
	if err != nil {
		return Job{}, err
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, keyJobs, job.ID, data)
		pipe.RPush(ctx, keyPending, data)
		return nil
	})
	if err != nil {
		return Job{}, fmt.Errorf("failed to enqueue job for target %d: %w", targetID, err)
	}
	return job, nil
}

// EnqueueUnique queues a job unless one is already pending or running for
// the target. The check and the insert happen in one script.
func (q *Queue) EnqueueUnique(ctx context.Context, targetID int64, source Source) (EnqueueResult, error) {
	job, data, err := q.newJob(targetID, source)
	if err != nil {
		return EnqueueResult{}, err
	}

	ttl := int64(q.dedupTTL / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	res, err := enqueueUnique.Run(ctx, q.client,
		[]string{dedupKey(targetID), keyJobs, keyPending},
		job.ID, data, ttl,
	).Slice()
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("failed to enqueue job for target %d: %w", targetID, err)
	}
	if len(res) != 2 {
		return EnqueueResult{}, fmt.Errorf("unexpected enqueue reply: %v", res)
	}

	queued, _ := res[0].(int64)
	id, _ := res[1].(string)
	return EnqueueResult{JobID: id, Skipped: queued == 0}, nil
}

// Lease is a claim on a target taken outside the queue, for checks that run
// inline. Holder is the job or lease that already owns the target when
// Acquired is false.
type Lease struct {
	TargetID int64  `json:"target_id"`
	Token    string `json:"token,omitempty"`
	Holder   string `json:"holder,omitempty"`
	Acquired bool   `json:"acquired"`
}

// Acquire claims the target's dedup key so no job can be queued for it until
// Release. It fails to acquire when a job is pending or running.
func (q *Queue) Acquire(ctx context.Context, targetID int64) (Lease, error) {
	lease := Lease{TargetID: targetID, Token: "inline:" + uuid.NewString()}
	key := dedupKey(targetID)

	ok, err := q.client.SetNX(ctx, key, lease.Token, q.dedupTTL).Result()
	if err != nil {
		return Lease{}, fmt.Errorf("failed to acquire target %d: %w", targetID, err)
	}
	if ok {
		lease.Acquired = true
		return lease, nil
	}

	holder, err := q.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Lease{}, fmt.Errorf("failed to read holder of target %d: %w", targetID, err)
	}
	return Lease{TargetID: targetID, Holder: holder}, nil
}

// Release gives back a lease taken with Acquire. Releasing a lease that was
// not acquired, or has since expired and been retaken, is a no-op.
func (q *Queue) Release(ctx context.Context, lease Lease) error {
	if !lease.Acquired {
		return nil
	}
	if err := releaseDedup.Run(ctx, q.client, []string{dedupKey(lease.TargetID)}, lease.Token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release target %d: %w", lease.TargetID, err)
	}
	return nil
}

// ListPending returns the jobs waiting to be picked up, oldest first.
func (q *Queue) ListPending(ctx context.Context) ([]Job, error) {
	raw, err := q.client.LRange(ctx, keyPending, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	jobs := make([]Job, 0, len(raw))
	for _, item := range raw {
		var j Job
		if err := json.Unmarshal([]byte(item), &j); err != nil {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// Fetch returns a pending or running job by id.
func (q *Queue) Fetch(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.HGet(ctx, keyJobs, jobID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", jobID, ErrJobNotFound)
		}
		return nil, fmt.Errorf("failed to fetch job %s: %w", jobID, err)
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return &j, nil
}

// Dequeue moves the oldest pending job to the processing list, blocking up
// to wait. It returns nil, nil when nothing arrived in time.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	data, err := q.client.BLMove(ctx, keyPending, keyProcessing, "LEFT", "RIGHT", wait).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	var j Job
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		// Unreadable payloads would block the processing list forever.
		q.client.LRem(ctx, keyProcessing, 1, data)
		return nil, fmt.Errorf("dropped malformed job payload: %w", err)
	}
	j.raw = data
	return &j, nil
}

// Ack removes a finished job and releases its target.
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	data := job.raw
	if data == "" {
		b, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		data = string(b)
	}
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, keyProcessing, 1, data)
		pipe.HDel(ctx, keyJobs, job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ack job %s: %w", job.ID, err)
	}
	// Only release the dedup key if it still belongs to this job.
	if err := releaseDedup.Run(ctx, q.client, []string{dedupKey(job.TargetID)}, job.ID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release target %d: %w", job.TargetID, err)
	}
	return nil
}

var releaseDedup = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Recover moves jobs left in the processing list by a previous run back to
// the pending list. Call it before workers start.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, keyProcessing, keyPending, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to recover jobs: %w", err)
		}
		moved++
	}
}

// Depth returns pending and processing counts.
func (q *Queue) Depth(ctx context.Context) (Depth, error) {
	var pending, processing *redis.IntCmd
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pending = pipe.LLen(ctx, keyPending)
		processing = pipe.LLen(ctx, keyProcessing)
		return nil
	})
	if err != nil {
		return Depth{}, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return Depth{Pending: pending.Val(), Processing: processing.Val()}, nil
}
