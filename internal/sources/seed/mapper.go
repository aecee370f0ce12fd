package seed

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
)

// Map validates a seed file and converts it to domain values. Every problem
// is reported, not only the first.
func Map(f File) ([]*domain.User, []*domain.Target, error) {
	var errs []error

	users := make([]*domain.User, 0, len(f.Users))
	known := make(map[string]bool, len(f.Users))
	for i, e := range f.Users {
		u, err := mapUser(e)
		if err != nil {
			errs = append(errs, fmt.Errorf("users[%d]: %w", i, err))
			continue
		}
		if known[u.ID] {
			errs = append(errs, fmt.Errorf("users[%d]: duplicate id %q", i, u.ID))
			continue
		}
		known[u.ID] = true
		users = append(users, u)
	}

	targets := make([]*domain.Target, 0, len(f.Targets))
	for i, e := range f.Targets {
		t, err := mapTarget(e)
		if err != nil {
			errs = append(errs, fmt.Errorf("targets[%d]: %w", i, err))
			continue
		}
		if !known[t.OwnerID] {
			errs = append(errs, fmt.Errorf("targets[%d]: unknown owner %q", i, t.OwnerID))
			continue
		}
		targets = append(targets, t)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, nil, err
	}
	return users, targets, nil
}

func mapUser(e UserEntry) (*domain.User, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return nil, errors.New("missing id")
	}
	u := domain.NewUser(id)
	u.Email = strings.TrimSpace(e.Email)
	u.TelegramToken = e.TelegramToken
	u.TelegramChatID = e.TelegramChatID
	u.TeamsWebhook = e.TeamsWebhook

	if e.Preference != "" {
		p := domain.Preference(strings.ToLower(strings.TrimSpace(e.Preference)))
		if !p.Valid() {
			return nil, fmt.Errorf("invalid notification_preference %q", e.Preference)
		}
		u.Preference = p
	}
	if e.SummaryTimes != "" {
		if _, err := domain.ParseClockTimes(e.SummaryTimes); err != nil {
			return nil, fmt.Errorf("summary_times: %w", err)
		}
		u.SummaryTimes = e.SummaryTimes
	}
	if e.NotifyOnlyChanges != nil {
		u.NotifyOnlyChanges = *e.NotifyOnlyChanges
	}
	return u, nil
}

func mapTarget(e TargetEntry) (*domain.Target, error) {
	raw := strings.TrimSpace(e.URL)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", e.URL)
	}

	t := &domain.Target{
		OwnerID:   strings.TrimSpace(e.Owner),
		URL:       raw,
		Proxy:     strings.TrimSpace(e.Proxy),
		Mode:      domain.ModeGeneral,
		FocusHint: strings.TrimSpace(e.Focus),
		Status:    domain.StatusActive,
	}

	switch {
	case e.IntervalMinutes > 0 && len(e.Times) > 0:
		return nil, errors.New("set either interval_minutes or times, not both")
	case e.IntervalMinutes > 0:
		t.Policy = domain.PolicyInterval
		t.PolicyValue = strconv.Itoa(e.IntervalMinutes)
	case len(e.Times) > 0:
		value := strings.Join(e.Times, ",")
		if _, err := domain.ParseClockTimes(value); err != nil {
			return nil, fmt.Errorf("times: %w", err)
		}
		t.Policy = domain.PolicySpecificTimes
		t.PolicyValue = value
	default:
		return nil, errors.New("missing interval_minutes or times")
	}

	switch domain.MonitoringMode(strings.ToLower(e.Mode)) {
	case "", domain.ModeGeneral:
	case domain.ModeSpecificElements:
		if len(e.Keywords) == 0 {
			return nil, errors.New("specific_elements mode needs keywords")
		}
		t.Mode = domain.ModeSpecificElements
	default:
		return nil, fmt.Errorf("invalid mode %q", e.Mode)
	}
	for _, k := range e.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			t.Keywords = append(t.Keywords, k)
		}
	}
	return t, nil
}
