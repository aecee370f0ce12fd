// Package notify delivers check results over email, Telegram and Teams, and
// routes each result to immediate delivery, the summary queue, or both.
package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
)

const ChannelEmail = "email"

// Recipient is where a user receives messages.
type Recipient struct {
	UserID         string
	Email          string
	TelegramToken  string
	TelegramChatID string
	TeamsWebhook   string
}

func RecipientFor(u *domain.User) Recipient {
	return Recipient{
		UserID:         u.ID,
		Email:          u.Email,
		TelegramToken:  u.TelegramToken,
		TelegramChatID: u.TelegramChatID,
		TeamsWebhook:   u.TeamsWebhook,
	}
}

// Message is channel independent. Body is plain text with light markdown.
type Message struct {
	Subject    string
	Body       string
	Screenshot string // optional file path, attached where the channel supports it
}

type Channel interface {
	Name() string
	// Enabled reports whether the channel can reach r at all.
	Enabled(r Recipient) bool
	Send(ctx context.Context, r Recipient, m Message) error
}

// Report is the outcome of one channel.
type Report struct {
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Dispatcher fans a message out to every channel.
type Dispatcher struct {
	channels []Channel
	log      logger.Logger
}

func NewDispatcher(log logger.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, log: log}
}

// Deliver sends m on every enabled channel. Channels are independent: a
// failure is reported and logged, never returned.
func (d *Dispatcher) Deliver(ctx context.Context, r Recipient, m Message) []Report {
	reports := make([]Report, 0, len(d.channels))
	for _, ch := range d.channels {
		if !ch.Enabled(r) {
			continue
		}
		reports = append(reports, d.send(ctx, ch, r, m))
	}
	return reports
}

// Alert sends m by email only. Used for operator-facing failures.
func (d *Dispatcher) Alert(ctx context.Context, r Recipient, m Message) (Report, bool) {
	for _, ch := range d.channels {
		if ch.Name() == ChannelEmail && ch.Enabled(r) {
			return d.send(ctx, ch, r, m), true
		}
	}
	return Report{}, false
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, r Recipient, m Message) Report {
	if err := ch.Send(ctx, r, m); err != nil {
		d.log.Warn("notification failed",
			logger.String("channel", ch.Name()),
			logger.String("user", r.UserID),
			logger.Error(err))
		return Report{Channel: ch.Name(), Message: err.Error()}
	}
	d.log.Info("notification sent",
		logger.String("channel", ch.Name()),
		logger.String("user", r.UserID))
	return Report{Channel: ch.Name(), OK: true, Message: "sent"}
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
