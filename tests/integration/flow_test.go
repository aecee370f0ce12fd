package integration

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/pagewatch/internal/ai"
	"github.com/MrSnakeDoc/pagewatch/internal/artifacts"
	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/fetcher"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/notify"
	"github.com/MrSnakeDoc/pagewatch/internal/pipeline"
	"github.com/MrSnakeDoc/pagewatch/internal/prompts"
	"github.com/MrSnakeDoc/pagewatch/internal/queue"
	"github.com/MrSnakeDoc/pagewatch/internal/scheduler"
	"github.com/MrSnakeDoc/pagewatch/internal/screenshot"
	"github.com/MrSnakeDoc/pagewatch/internal/store/memory"
	redisstore "github.com/MrSnakeDoc/pagewatch/internal/store/redis"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type staticPage struct{ body string }

func (p staticPage) Fetch(context.Context, string, string) (*fetcher.Result, error) {
	return &fetcher.Result{Body: p.body, StatusCode: 200, Attempts: 1}, nil
}

type okCapturer struct{}

func (okCapturer) Capture(context.Context, string, string, string) screenshot.Result {
	return screenshot.Result{OK: true}
}

type noProxies struct{}

func (noProxies) Fallbacks(context.Context, string) []string { return nil }

type scriptedDetector struct {
	verdicts map[string]domain.Verdict
}

func (d scriptedDetector) Compare(_ context.Context, req ai.DetectRequest) domain.Verdict {
	return d.verdicts[req.URL]
}

type inbox struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (i *inbox) Name() string                  { return notify.ChannelEmail }
func (i *inbox) Enabled(notify.Recipient) bool { return true }
func (i *inbox) Send(_ context.Context, _ notify.Recipient, m notify.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sent = append(i.sent, m)
	return nil
}

func (i *inbox) messages() []notify.Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]notify.Message(nil), i.sent...)
}

type system struct {
	clock   *clock
	records *memory.Store
	queue   *queue.Queue
	checks  *pipeline.Pipeline
	due     *scheduler.DueChecker
	summary *scheduler.SummaryAggregator
	inbox   *inbox
}

func newSystem(t *testing.T, start time.Time, detector scriptedDetector) *system {
	t.Helper()
	log := logger.NewNop()
	clk := &clock{t: start}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	records := memory.New().WithClock(clk.Now)
	pending := redisstore.NewStore(client)
	q := queue.New(client, time.Hour, clk.Now)

	files, err := artifacts.New(t.TempDir(), log)
	if err != nil {
		t.Fatalf("artifacts.New() error = %v", err)
	}
	prm, err := prompts.New("", log)
	if err != nil {
		t.Fatalf("prompts.New() error = %v", err)
	}

	box := &inbox{}
	dispatcher := notify.NewDispatcher(log, box)
	router := notify.NewRouter(records, pending, dispatcher, nil, prm, clk.Now, log)

	checks := pipeline.New(pipeline.Config{}, pipeline.Deps{
		Records:   records,
		Fetcher:   staticPage{body: "<html><body><h1>Menu</h1></body></html>"},
		Capturer:  okCapturer{},
		Proxies:   noProxies{},
		Artifacts: files,
		Detector:  detector,
		Prompts:   prm,
		Router:    router,
		Alerts:    dispatcher,
		Now:       clk.Now,
		Log:       log,
	})

	return &system{
		clock:   clk,
		records: records,
		queue:   q,
		checks:  checks,
		due:     scheduler.NewDueChecker(records, q, clk.Now, time.UTC, log),
		summary: scheduler.NewSummaryAggregator(records, records, pending, router, 10*time.Minute, clk.Now, time.UTC, log),
		inbox:   box,
	}
}

func (s *system) addUser(t *testing.T, id string, pref domain.Preference) {
	t.Helper()
	u := domain.NewUser(id)
	u.Email = id + "@example.com"
	u.Preference = pref
	if err := s.records.UpsertUser(context.Background(), u); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
}

func (s *system) addTarget(t *testing.T, owner, url string) int64 {
	t.Helper()
	tgt := &domain.Target{
		OwnerID:     owner,
		URL:         url,
		Policy:      domain.PolicyInterval,
		PolicyValue: "60",
		Status:      domain.StatusActive,
		Mode:        domain.ModeGeneral,
	}
	if err := s.records.UpsertTarget(context.Background(), tgt); err != nil {
		t.Fatalf("UpsertTarget() error = %v", err)
	}
	return tgt.ID
}

// work drains the queue the way a worker does.
func (s *system) work(t *testing.T) int {
	t.Helper()
	ctx := context.Background()
	n := 0
	for {
		job, err := s.queue.Dequeue(ctx, 50*time.Millisecond)
		if err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		if job == nil {
			return n
		}
		if _, err := s.checks.Run(ctx, job.TargetID); err != nil {
			t.Fatalf("Run(%d) error = %v", job.TargetID, err)
		}
		if err := s.queue.Ack(ctx, job); err != nil {
			t.Fatalf("Ack() error = %v", err)
		}
		n++
	}
}

// TestCheckToSummaryFlow follows targets from the due check through the
// queue and the pipeline to immediate delivery and the periodic summary.
func TestCheckToSummaryFlow(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 8, 55, 0, 0, time.UTC)

	changed := domain.Verdict{ChangeDetected: domain.Bool(true), Significance: "high", Summary: "New lunch menu"}
	unchanged := domain.Verdict{ChangeDetected: domain.Bool(false), Summary: "Nothing new"}
	sys := newSystem(t, start, scriptedDetector{verdicts: map[string]domain.Verdict{
		"https://cafe.example.com":  changed,
		"https://news.example.com":  changed,
		"https://quiet.example.com": unchanged,
	}})

	sys.addUser(t, "alice", domain.PreferenceSummary)
	sys.addUser(t, "bob", domain.PreferenceImmediate)
	cafe := sys.addTarget(t, "alice", "https://cafe.example.com")
	quiet := sys.addTarget(t, "alice", "https://quiet.example.com")
	sys.addTarget(t, "bob", "https://news.example.com")

	// Two ticks before any worker runs: the second finds every target held.
	first, err := sys.due.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if first.Due != 3 || first.Queued != 3 {
		t.Fatalf("first tick = %+v, want 3 due and queued", first)
	}
	second, err := sys.due.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if second.Queued != 0 || second.Skipped != 3 {
		t.Fatalf("second tick = %+v, want 3 skipped", second)
	}

	if n := sys.work(t); n != 3 {
		t.Fatalf("worked %d jobs, want 3", n)
	}

	tests := []struct {
		name   string
		target int64
		status domain.Status
	}{
		{name: "changed page", target: cafe, status: domain.StatusChange},
		{name: "unchanged page", target: quiet, status: domain.StatusNoChange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sys.records.GetTarget(ctx, tt.target)
			if err != nil {
				t.Fatalf("GetTarget() error = %v", err)
			}
			if got.Status != tt.status || got.LastChecked == nil || !got.LastChecked.Equal(start) {
				t.Errorf("target = status %s last_checked %v", got.Status, got.LastChecked)
			}
		})
	}

	// Only bob is immediate; alice waits for her summary.
	msgs := sys.inbox.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].Subject, "news.example.com") {
		t.Fatalf("immediate messages = %+v", msgs)
	}

	// Just checked, nothing is due again.
	again, err := sys.due.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if again.Due != 0 {
		t.Errorf("tick after checks = %+v, want nothing due", again)
	}

	sys.clock.Set(time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC))
	res, err := sys.summary.Tick(ctx)
	if err != nil {
		t.Fatalf("summary Tick() error = %v", err)
	}
	if res.Sent != 1 || res.Items != 1 {
		t.Fatalf("summary = %+v, want one summary with the changed page", res)
	}

	msgs = sys.inbox.messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want immediate plus summary", len(msgs))
	}
	if body := msgs[1].Body; !strings.Contains(body, "cafe.example.com") || strings.Contains(body, "quiet.example.com") {
		t.Errorf("summary body = %q", body)
	}

	// The same window never sends the records twice.
	res, err = sys.summary.Tick(ctx)
	if err != nil {
		t.Fatalf("summary Tick() error = %v", err)
	}
	if res.Sent != 0 || len(sys.inbox.messages()) != 2 {
		t.Errorf("repeat summary = %+v", res)
	}
}
