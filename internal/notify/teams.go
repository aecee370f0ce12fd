package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrSnakeDoc/pagewatch/internal/utils"
)

const teamsTitle = "AI Website Monitor Notification"

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	Summary    string         `json:"summary"`
	ThemeColor string         `json:"themeColor"`
	Title      string         `json:"title"`
	Sections   []teamsSection `json:"sections"`
}

type teamsSection struct {
	Text string `json:"text"`
}

// Teams posts a MessageCard to the recipient's incoming webhook.
type Teams struct {
	client *http.Client
}

func NewTeams() *Teams {
	return &Teams{client: defaultHTTPClient()}
}

func (t *Teams) Name() string { return "teams" }

func (t *Teams) Enabled(r Recipient) bool { return r.TeamsWebhook != "" }

func (t *Teams) Send(ctx context.Context, r Recipient, m Message) error {
	if r.TeamsWebhook == "" {
		return errors.New("no teams webhook configured")
	}
	title := m.Subject
	if title == "" {
		title = teamsTitle
	}
	payload, err := json.Marshal(teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		Summary:    teamsTitle,
		ThemeColor: "0076D7",
		Title:      title,
		Sections:   []teamsSection{{Text: m.Body}},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.TeamsWebhook, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send teams notification: %w", err)
	}
	defer utils.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("teams webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
