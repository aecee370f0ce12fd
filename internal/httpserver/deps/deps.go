package deps

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/pipeline"
	"github.com/MrSnakeDoc/pagewatch/internal/queue"
	"github.com/MrSnakeDoc/pagewatch/internal/scheduler"
)

// Records is the part of the record store the API reads.
type Records interface {
	GetTarget(ctx context.Context, id int64) (*domain.Target, error)
	ListChecks(ctx context.Context, targetID int64, limit int) ([]domain.CheckRecord, error)
	Ping(ctx context.Context) error
}

type Queue interface {
	EnqueueUnique(ctx context.Context, targetID int64, source queue.Source) (queue.EnqueueResult, error)
	Acquire(ctx context.Context, targetID int64) (queue.Lease, error)
	Release(ctx context.Context, lease queue.Lease) error
	ListPending(ctx context.Context) ([]queue.Job, error)
	Fetch(ctx context.Context, jobID string) (*queue.Job, error)
	Depth(ctx context.Context) (queue.Depth, error)
}

// Checker runs one check synchronously.
type Checker interface {
	Run(ctx context.Context, targetID int64) (pipeline.Result, error)
}

// Jobs forces periodic jobs and reports on them.
type Jobs interface {
	Run(ctx context.Context, name string) (any, error)
	Status() []scheduler.JobStatus
}

type Prompts interface {
	All() map[string]string
	Set(name, value string) error
	Reload() error
}

type Cleaner interface {
	Collect(ctx context.Context) (scheduler.CleanupResult, error)
}

type Deps struct {
	Logger        logger.Logger
	StartTime     time.Time
	Version       string
	Commit        string
	BuildDate     string
	GoVersion     string
	TimeNow       func() time.Time // for testing, defaults to time.Now
	AllowedHosts  []string         // Host headers allowed to access the server
	AllowedCIDRS  []string         // IPs allowed to access the API
	TrustProxy    bool             // true if running behind a trusted reverse proxy
	AdminKey      string           // shared secret for /api routes, empty disables the check
	RateBurst     int              // per-IP burst on /api routes
	RatePerMin    int              // per-IP refill on /api routes
	RedisClient   *redis.Client    // Redis client connection
	Records       Records          // record store
	Queue         Queue            // work queue
	Checker       Checker          // synchronous check pipeline
	Jobs          Jobs             // periodic job runner
	Prompts       Prompts          // prompt admin
	Cleaner       Cleaner          // retention cleanup
	ReloadTrigger chan struct{}    // manual seed reload, nil when no seed file is configured
}

// Now returns the injected clock, or time.Now.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
