package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/MrSnakeDoc/pagewatch/internal/utils"
)

const telegramAPI = "https://api.telegram.org"

// telegramMaxText is the Bot API limit for one message.
const telegramMaxText = 4096

type TelegramConfig struct {
	APIBase string // default https://api.telegram.org
	// Token and ChatID are used when the recipient has none of their own.
	Token  string
	ChatID string
}

type Telegram struct {
	cfg     TelegramConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.APIBase == "" {
		cfg.APIBase = telegramAPI
	}
	return &Telegram{
		cfg:     cfg,
		client:  defaultHTTPClient(),
		limiter: rate.NewLimiter(rate.Limit(20), 5),
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) credentials(r Recipient) (token, chatID string) {
	token, chatID = r.TelegramToken, r.TelegramChatID
	if token == "" {
		token = t.cfg.Token
	}
	if chatID == "" {
		chatID = t.cfg.ChatID
	}
	return token, chatID
}

func (t *Telegram) Enabled(r Recipient) bool {
	token, chatID := t.credentials(r)
	return token != "" && chatID != ""
}

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, r Recipient, m Message) error {
	token, chatID := t.credentials(r)
	if token == "" {
		return errors.New("telegram bot token not configured")
	}
	if chatID == "" {
		return errors.New("telegram chat id not configured")
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	text := m.Body
	if len(text) > telegramMaxText {
		text = text[:telegramMaxText-3] + "..."
	}
	form := url.Values{
		"chat_id":    {chatID},
		"text":       {text},
		"parse_mode": {"Markdown"},
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.cfg.APIBase, "/"), token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the token, keep it out of the error.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("network error sending telegram message: %w", err)
	}
	defer utils.DrainClose(resp.Body)

	var reply telegramReply
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, &reply); err != nil {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	if !reply.OK {
		return fmt.Errorf("telegram API error: %s", reply.Description)
	}
	return nil
}
