package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/ai"
	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/prompts"
	"github.com/MrSnakeDoc/pagewatch/internal/store"
)

type PromptSource interface {
	Get(name string) string
}

type PendingPusher interface {
	PushPending(ctx context.Context, ownerID string, entry domain.PendingEntry) error
}

type Deliverer interface {
	Deliver(ctx context.Context, r Recipient, m Message) []Report
}

// RouteInput is one finished check.
type RouteInput struct {
	Target  *domain.Target
	Check   *domain.CheckRecord
	Verdict domain.Verdict
	User    *domain.User
}

type RouteOutcome struct {
	Skipped     bool     `json:"skipped"`
	ImmediateID int64    `json:"immediate_id,omitempty"`
	PendingID   int64    `json:"pending_id,omitempty"`
	Reports     []Report `json:"reports,omitempty"`
}

type Router struct {
	records  store.Notifications
	pending  PendingPusher
	delivery Deliverer
	gen      ai.Generator
	prompts  PromptSource
	now      func() time.Time
	log      logger.Logger
}

// NewRouter builds a router. gen may be nil, in which case templates are used.
func NewRouter(records store.Notifications, pending PendingPusher, delivery Deliverer, gen ai.Generator, prompts PromptSource, now func() time.Time, log logger.Logger) *Router {
	if now == nil {
		now = time.Now
	}
	return &Router{
		records:  records,
		pending:  pending,
		delivery: delivery,
		gen:      gen,
		prompts:  prompts,
		now:      now,
		log:      log,
	}
}

// Route applies the owner's preference to a finished check. Persistence
// errors are returned; delivery failures only show up in the reports.
func (r *Router) Route(ctx context.Context, in RouteInput) (RouteOutcome, error) {
	changed := in.Check.ChangeDetected
	if in.User.NotifyOnlyChanges && !changed {
		return RouteOutcome{Skipped: true}, nil
	}

	var out RouteOutcome
	targetID, checkID := in.Target.ID, in.Check.ID
	summary := in.Verdict.Text()

	if in.User.Preference.Immediate() {
		text := r.composeImmediate(ctx, in, summary)
		rec := &domain.Notification{
			OwnerID:        in.User.ID,
			Type:           domain.NotificationImmediate,
			TargetID:       &targetID,
			CheckID:        &checkID,
			Content:        text,
			ScreenshotPath: in.Check.ScreenshotPath,
			Sent:           true,
			CreatedAt:      r.now(),
		}
		if err := r.records.CreateNotification(ctx, rec); err != nil {
			return out, fmt.Errorf("persist immediate notification: %w", err)
		}
		out.ImmediateID = rec.ID
		out.Reports = r.delivery.Deliver(ctx, RecipientFor(in.User), Message{
			Subject:    ImmediateSubject(in.Target.URL, changed),
			Body:       text,
			Screenshot: in.Check.ScreenshotPath,
		})
	}

	if in.User.Preference.Summary() {
		rec := &domain.Notification{
			OwnerID:        in.User.ID,
			Type:           domain.NotificationImmediate,
			TargetID:       &targetID,
			CheckID:        &checkID,
			Content:        summary,
			ScreenshotPath: in.Check.ScreenshotPath,
			CreatedAt:      r.now(),
		}
		if err := r.records.CreateNotification(ctx, rec); err != nil {
			return out, fmt.Errorf("persist pending notification: %w", err)
		}
		out.PendingID = rec.ID
		entry := domain.PendingEntry{
			NotificationID: rec.ID,
			TargetID:       targetID,
			TargetURL:      in.Target.URL,
			OwnerID:        in.User.ID,
			Summary:        summary,
			ScreenshotPath: in.Check.ScreenshotPath,
			ChangeDetected: changed,
			Timestamp:      rec.CreatedAt,
		}
		if err := r.pending.PushPending(ctx, in.User.ID, entry); err != nil {
			return out, fmt.Errorf("queue notification for summary: %w", err)
		}
	}
	return out, nil
}

func (r *Router) composeImmediate(ctx context.Context, in RouteInput, summary string) string {
	at := in.Check.CheckedAt
	fallback := ImmediateText(in.Target.URL, at, summary, in.Check.ChangeDetected, in.Target.Status)
	if r.gen == nil || !in.Check.ChangeDetected || summary == "" || domain.LooksLikeError(summary) {
		return fallback
	}
	text, err := r.gen.Generate(ctx, r.prompts.Get(prompts.Notification), notificationPrompt(in.Target.URL, at, summary))
	if err != nil || text == "" {
		r.log.Warn("notification rewrite failed, using template",
			logger.String("url", in.Target.URL), logger.Error(err))
		return fallback
	}
	return text
}

// ComposeSummary writes the aggregate message for a summary tick.
func (r *Router) ComposeSummary(ctx context.Context, at time.Time, items []SummaryItem) string {
	fallback := SummaryText(at, items)
	if r.gen == nil || len(items) == 0 {
		return fallback
	}
	text, err := r.gen.Generate(ctx, r.prompts.Get(prompts.Summary), summaryPrompt(items))
	if err != nil || text == "" {
		r.log.Warn("summary narrative failed, using template", logger.Error(err))
		return fallback
	}
	return summaryHeader(at) + "\n\n" + text
}

// Deliver sends a message to a user on every channel.
func (r *Router) Deliver(ctx context.Context, u *domain.User, m Message) []Report {
	return r.delivery.Deliver(ctx, RecipientFor(u), m)
}
