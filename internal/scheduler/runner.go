package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/MrSnakeDoc/pagewatch/internal/logger"
)

var (
	// ErrAlreadyRunning is returned by a forced run while the same job runs.
	ErrAlreadyRunning = errors.New("job already running")
	ErrUnknownJob     = errors.New("unknown job")
)

// Job names registered by the application.
const (
	JobDueCheck = "due-check"
	JobSummary  = "summary"
)

// DefaultSpec fires every ten minutes.
const DefaultSpec = "*/10 * * * *"

// JobFunc runs one pass and returns a result shown to manual callers.
type JobFunc func(ctx context.Context) (any, error)

// JobStatus is a snapshot of a registered job.
type JobStatus struct {
	Name         string     `json:"name"`
	Spec         string     `json:"spec"`
	Running      bool       `json:"running"`
	Runs         int        `json:"runs"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastDuration string     `json:"last_duration,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}

type job struct {
	name  string
	spec  string
	fn    JobFunc
	entry cron.EntryID

	// run is held for the whole pass; scheduled and forced runs TryLock it.
	run sync.Mutex

	mu       sync.Mutex
	running  bool
	runs     int
	lastRun  time.Time
	lastTook time.Duration
	lastErr  string
}

// Runner drives periodic jobs on one cron instance. Each job runs at most
// once at a time, whether it was fired by the schedule or forced by hand.
// Different jobs run concurrently.
type Runner struct {
	cron   *cron.Cron
	now    func() time.Time
	logger logger.Logger

	mu     sync.RWMutex
	jobs   map[string]*job
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRunner(log logger.Logger, now func() time.Time) *Runner {
	if now == nil {
		now = time.Now
	}
	cl := cronLogger{log: log}
	return &Runner{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		now:    now,
		logger: log,
		jobs:   make(map[string]*job),
		ctx:    context.Background(),
	}
}

// Add registers fn under name on the given cron spec. An empty spec
// registers a job that only runs when forced.
func (r *Runner) Add(name, spec string, fn JobFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	j := &job{name: name, spec: spec, fn: fn}
	if spec != "" {
		id, err := r.cron.AddFunc(spec, func() { r.scheduled(j) })
		if err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
		}
		j.entry = id
	}
	r.jobs[name] = j
	return nil
}

// Start begins firing scheduled jobs. Jobs run with ctx until Stop.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.cron.Start()
	r.logger.Info("⏰ Scheduler started", logger.Strings("jobs", r.names()))
}

// Stop stops firing jobs and waits for running ones to return.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	// Forced runs hold the job lock too.
	r.mu.RLock()
	for _, j := range r.jobs {
		j.run.Lock()
		j.run.Unlock()
	}
	r.mu.RUnlock()

	r.logger.Info("✅ Scheduler stopped cleanly")
}

// Run forces one pass of the named job and returns its result.
func (r *Runner) Run(ctx context.Context, name string) (any, error) {
	r.mu.RLock()
	j, ok := r.jobs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	if !j.run.TryLock() {
		return nil, fmt.Errorf("%s: %w", name, ErrAlreadyRunning)
	}
	defer j.run.Unlock()

	r.logger.Info("manual run triggered", logger.String("job", name))
	return r.execute(ctx, j)
}

func (r *Runner) scheduled(j *job) {
	if !j.run.TryLock() {
		r.logger.Info("skipping scheduled run, job already running",
			logger.String("job", j.name))
		return
	}
	defer j.run.Unlock()

	r.mu.RLock()
	ctx := r.ctx
	r.mu.RUnlock()

	if _, err := r.execute(ctx, j); err != nil {
		r.logger.Error("scheduled job failed",
			logger.String("job", j.name),
			logger.Error(err))
	}
}

func (r *Runner) execute(ctx context.Context, j *job) (any, error) {
	start := r.now()
	j.mu.Lock()
	j.running = true
	j.mu.Unlock()

	out, err := j.fn(ctx)

	took := r.now().Sub(start)
	j.mu.Lock()
	j.running = false
	j.runs++
	j.lastRun = start
	j.lastTook = took
	j.lastErr = ""
	if err != nil {
		j.lastErr = err.Error()
	}
	j.mu.Unlock()

	r.logger.Debug("job finished",
		logger.String("job", j.name),
		logger.Duration("took", took))
	return out, err
}

// Status returns every job sorted by name.
func (r *Runner) Status() []JobStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]JobStatus, 0, len(r.jobs))
	for _, j := range r.jobs {
		j.mu.Lock()
		st := JobStatus{
			Name:    j.name,
			Spec:    j.spec,
			Running: j.running,
			Runs:    j.runs,
		}
		if !j.lastRun.IsZero() {
			last := j.lastRun
			st.LastRun = &last
			st.LastDuration = j.lastTook.String()
			st.LastError = j.lastErr
		}
		j.mu.Unlock()

		if j.entry != 0 {
			if next := r.cron.Entry(j.entry).Next; !next.IsZero() {
				st.NextRun = &next
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func (r *Runner) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cronLogger routes cron's own messages into the application logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
