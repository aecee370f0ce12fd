// Package pipeline runs one check of one target: fetch, screenshot, change
// detection, persistence and notification routing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/ai"
	"github.com/MrSnakeDoc/pagewatch/internal/artifacts"
	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/fetcher"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/notify"
	"github.com/MrSnakeDoc/pagewatch/internal/prompts"
	"github.com/MrSnakeDoc/pagewatch/internal/screenshot"
	"github.com/MrSnakeDoc/pagewatch/internal/store"
)

const (
	CaptchaFetchText      = "CAPTCHA detected on the website. Manual intervention required."
	CaptchaScreenshotText = "CAPTCHA detected during screenshot capture. Manual intervention required."

	defaultScreenshotAttempts = 3
)

type Fetcher interface {
	Fetch(ctx context.Context, url, proxy string) (*fetcher.Result, error)
}

type ProxySource interface {
	Fallbacks(ctx context.Context, backup string) []string
}

type Router interface {
	Route(ctx context.Context, in notify.RouteInput) (notify.RouteOutcome, error)
}

type Alerter interface {
	Alert(ctx context.Context, r notify.Recipient, m notify.Message) (notify.Report, bool)
}

type PromptSource interface {
	Get(name string) string
}

// Records is the part of the store the pipeline touches.
type Records interface {
	store.Targets
	store.Checks
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// Result is the outcome of one run, also returned by the synchronous check
// endpoint.
type Result struct {
	Success    bool          `json:"success"`
	Message    string        `json:"message"`
	Screenshot string        `json:"screenshot"`
	Summary    string        `json:"summary"`
	Status     domain.Status `json:"status"`
}

type Config struct {
	BackupProxy        string
	ScreenshotAttempts int
}

type Deps struct {
	Records   Records
	Fetcher   Fetcher
	Capturer  screenshot.Capturer
	Proxies   ProxySource
	Artifacts *artifacts.Store
	Detector  ai.Detector
	Prompts   PromptSource
	Router    Router
	Alerts    Alerter
	Now       func() time.Time
	Log       logger.Logger
}

type Pipeline struct {
	cfg Config
	Deps
}

func New(cfg Config, deps Deps) *Pipeline {
	if cfg.ScreenshotAttempts <= 0 {
		cfg.ScreenshotAttempts = defaultScreenshotAttempts
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{cfg: cfg, Deps: deps}
}

// Run checks one target. A returned error means the run could not be
// recorded; check outcomes, failures included, are in Result.
func (p *Pipeline) Run(ctx context.Context, targetID int64) (res Result, err error) {
	log := p.Log.With(logger.Int64("target_id", targetID))

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("unexpected failure: %v", r)
			log.Error("check panicked", logger.String("panic", fmt.Sprint(r)), logger.String("stack", string(debug.Stack())))
			now := p.Now()
			if serr := p.Records.UpdateTargetState(ctx, targetID, store.TargetState{
				Status: domain.StatusError, LastError: msg, LastChecked: &now,
			}); serr != nil {
				log.Error("failed to record panic", logger.Error(serr))
			}
			res = Result{Message: msg, Status: domain.StatusError}
			err = errors.New(msg)
		}
	}()

	t, err := p.Records.GetTarget(ctx, targetID)
	if err != nil {
		return Result{}, fmt.Errorf("load target: %w", err)
	}
	log = log.With(logger.String("url", t.URL))

	if err := p.Records.UpdateTargetState(ctx, t.ID, store.TargetState{Status: domain.StatusChecking}); err != nil {
		return Result{}, fmt.Errorf("mark checking: %w", err)
	}

	user, err := p.Records.GetUser(ctx, t.OwnerID)
	if err != nil {
		log.Warn("owner not found, notifications disabled", logger.String("owner", t.OwnerID), logger.Error(err))
		user = nil
	}

	started := p.Now()

	page, err := p.Fetcher.Fetch(ctx, t.URL, t.Proxy)
	if errors.Is(err, fetcher.ErrChallenge) {
		return p.stopOnCaptcha(ctx, log, t, user, started, CaptchaFetchText, &domain.CheckRecord{})
	}
	if err != nil {
		log.Warn("fetch failed", logger.Error(err))
		rec := &domain.CheckRecord{Error: err.Error()}
		res, perr := p.stopOnError(ctx, log, t, started, rec)
		if perr == nil {
			p.alert(ctx, log, user, notify.ErrorSubject(t.URL),
				fmt.Sprintf("Check of %s failed at %s:\n\n%s", t.URL, started.Format("2006-01-02 15:04:05"), err))
		}
		return res, perr
	}

	htmlPath, err := p.Artifacts.WriteHTML(t.URL, started, page.Body)
	if err != nil {
		log.Warn("html artifact not saved", logger.Error(err))
	}

	shot, lastMsg, captcha := p.capture(ctx, log, t, started)
	if captcha {
		return p.stopOnCaptcha(ctx, log, t, user, started, CaptchaScreenshotText, &domain.CheckRecord{HTMLPath: htmlPath})
	}
	if shot == "" {
		log.Warn("screenshot failed on every attempt", logger.String("last", lastMsg))
		return p.stopOnError(ctx, log, t, started, &domain.CheckRecord{
			HTMLPath: htmlPath,
			Error:    "screenshot failed: " + lastMsg,
			Latency:  page.Latency,
		})
	}

	var prevShot, prevHTML string
	prev, err := p.Records.LatestCheckWithScreenshot(ctx, t.ID)
	switch {
	case err == nil:
		prevShot, prevHTML = prev.ScreenshotPath, prev.HTMLPath
	case !errors.Is(err, store.ErrNotFound):
		log.Warn("previous check unavailable", logger.Error(err))
	}

	verdict := p.Detector.Compare(ctx, ai.DetectRequest{
		URL:            t.URL,
		PrevScreenshot: prevShot,
		CurrScreenshot: shot,
		Mode:           t.Mode,
		Keywords:       t.KeywordString(),
		FocusHint:      t.FocusHint,
		Instruction:    p.Prompts.Get(prompts.Compare),
	})
	changed := verdict.Changed()

	var diffPath string
	if changed && prevHTML != "" {
		if diffPath, err = p.Artifacts.WriteDiff(t.URL, started, prevHTML, page.Body); err != nil {
			log.Warn("diff not saved", logger.Error(err))
		}
	}

	rec := &domain.CheckRecord{
		TargetID:       t.ID,
		CheckedAt:      started,
		ScreenshotPath: shot,
		HTMLPath:       htmlPath,
		DiffPath:       diffPath,
		RawVerdict:     verdict.JSON(),
		ChangeDetected: changed,
		Significance:   verdict.Significance,
		Summary:        verdict.Text(),
		Error:          verdict.Error,
		Latency:        page.Latency,
	}
	if err := p.Records.CreateCheck(ctx, rec); err != nil {
		return Result{}, p.abort(ctx, log, t.ID, fmt.Errorf("persist check: %w", err))
	}

	status := domain.StatusNoChange
	if changed {
		status = domain.StatusChange
	}
	finished := p.Now()
	if err := p.Records.UpdateTargetState(ctx, t.ID, store.TargetState{Status: status, LastChecked: &finished}); err != nil {
		return Result{}, p.abort(ctx, log, t.ID, fmt.Errorf("update target: %w", err))
	}
	t.Status, t.LastError, t.LastChecked = status, "", &finished

	log.Info("check completed",
		logger.String("status", string(status)),
		logger.String("significance", verdict.Significance),
		logger.Duration("latency", page.Latency))

	if user != nil {
		out, err := p.Router.Route(ctx, notify.RouteInput{Target: t, Check: rec, Verdict: verdict, User: user})
		if err != nil {
			log.Error("notification routing failed", logger.Error(err))
		} else if !out.Skipped {
			log.Debug("notifications routed", logger.Int64("immediate", out.ImmediateID), logger.Int64("pending", out.PendingID))
		}
	}

	return Result{
		Success:    true,
		Message:    "Check completed",
		Screenshot: shot,
		Summary:    verdict.Text(),
		Status:     status,
	}, nil
}

// capture tries the target's own proxy first, then the fallback list. The
// list is only fetched if the first attempt fails.
func (p *Pipeline) capture(ctx context.Context, log logger.Logger, t *domain.Target, at time.Time) (path, lastMsg string, captcha bool) {
	dest := p.Artifacts.ScreenshotPath(t.URL, at)
	var (
		fallbacks []string
		fetched   bool
	)

	for attempt := 1; attempt <= p.cfg.ScreenshotAttempts; attempt++ {
		proxy := t.Proxy
		if attempt > 1 {
			if !fetched {
				fallbacks, fetched = p.Proxies.Fallbacks(ctx, p.cfg.BackupProxy), true
			}
			proxy = ""
			if len(fallbacks) > 0 {
				proxy = fallbacks[min(attempt-2, len(fallbacks)-1)]
			}
		}

		r := p.Capturer.Capture(ctx, t.URL, dest, proxy)
		if r.OK {
			return dest, "", false
		}
		lastMsg = r.Message
		if fetcher.ContainsCaptchaMarker(r.Message) {
			return "", lastMsg, true
		}
		log.Warn("screenshot attempt failed",
			logger.Int("attempt", attempt),
			logger.Bool("proxied", proxy != ""),
			logger.String("reason", r.Message))
	}
	return "", lastMsg, false
}

func (p *Pipeline) stopOnCaptcha(ctx context.Context, log logger.Logger, t *domain.Target, user *domain.User, at time.Time, text string, rec *domain.CheckRecord) (Result, error) {
	log.Warn("captcha detected, target paused")
	rec.TargetID = t.ID
	rec.CheckedAt = at
	rec.Error = text
	if err := p.persistFailure(ctx, t, domain.StatusCaptcha, rec); err != nil {
		return Result{}, p.abort(ctx, log, t.ID, err)
	}
	p.alert(ctx, log, user, notify.CaptchaSubject(t.URL),
		fmt.Sprintf("%s\n\nURL: %s\nDetected at: %s\n\nThe target will not be checked again until it is edited.",
			text, t.URL, at.Format("2006-01-02 15:04:05")))
	return Result{Message: text, Status: domain.StatusCaptcha}, nil
}

func (p *Pipeline) stopOnError(ctx context.Context, log logger.Logger, t *domain.Target, at time.Time, rec *domain.CheckRecord) (Result, error) {
	rec.TargetID = t.ID
	rec.CheckedAt = at
	if err := p.persistFailure(ctx, t, domain.StatusError, rec); err != nil {
		return Result{}, p.abort(ctx, log, t.ID, err)
	}
	return Result{Message: rec.Error, Status: domain.StatusError}, nil
}

func (p *Pipeline) persistFailure(ctx context.Context, t *domain.Target, status domain.Status, rec *domain.CheckRecord) error {
	rec.Summary = rec.Error
	if err := p.Records.CreateCheck(ctx, rec); err != nil {
		return fmt.Errorf("persist check: %w", err)
	}
	now := p.Now()
	if err := p.Records.UpdateTargetState(ctx, t.ID, store.TargetState{
		Status:      status,
		LastError:   rec.Error,
		LastChecked: &now,
	}); err != nil {
		return fmt.Errorf("update target: %w", err)
	}
	return nil
}

// abort leaves the target in error with cause as its last error, so a failed
// write does not strand it in checking. It returns cause.
func (p *Pipeline) abort(ctx context.Context, log logger.Logger, targetID int64, cause error) error {
	now := p.Now()
	if err := p.Records.UpdateTargetState(ctx, targetID, store.TargetState{
		Status:      domain.StatusError,
		LastError:   cause.Error(),
		LastChecked: &now,
	}); err != nil {
		log.Error("failed to record check failure", logger.String("cause", cause.Error()), logger.Error(err))
	}
	return cause
}

func (p *Pipeline) alert(ctx context.Context, log logger.Logger, user *domain.User, subject, body string) {
	if user == nil || p.Alerts == nil {
		return
	}
	rep, ok := p.Alerts.Alert(ctx, notify.RecipientFor(user), notify.Message{Subject: subject, Body: strings.TrimSpace(body)})
	if !ok {
		log.Debug("no alert channel for owner", logger.String("owner", user.ID))
		return
	}
	if !rep.OK {
		log.Warn("alert not delivered", logger.String("reason", rep.Message))
	}
}
