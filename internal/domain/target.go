package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a Target.
type Status string

const (
	StatusActive   Status = "active"
	StatusChecking Status = "checking"
	StatusChange   Status = "change"
	StatusNoChange Status = "no-change"
	StatusError    Status = "error"
	StatusCaptcha  Status = "captcha"
)

// Schedulable reports whether the due-check scheduler may pick the target up.
// A captcha target waits for its owner to change its settings, which resets
// it to active.
func (s Status) Schedulable() bool {
	return s != StatusCaptcha
}

// PolicyKind selects how due-ness is computed.
type PolicyKind string

const (
	PolicyInterval      PolicyKind = "interval"
	PolicySpecificTimes PolicyKind = "specific_times"
)

// MonitoringMode tells the change detector what to look at.
type MonitoringMode string

const (
	ModeGeneral          MonitoringMode = "general"
	ModeSpecificElements MonitoringMode = "specific_elements"
)

// Target is a monitored URL.
type Target struct {
	ID          int64          `json:"id"`
	OwnerID     string         `json:"owner_id"`
	URL         string         `json:"url"`
	Policy      PolicyKind     `json:"policy"`
	PolicyValue string         `json:"policy_value"` // minutes for interval, "HH:MM,HH:MM" for specific_times
	LastChecked *time.Time     `json:"last_checked,omitempty"`
	Status      Status         `json:"status"`
	LastError   string         `json:"last_error,omitempty"`
	Proxy       string         `json:"proxy,omitempty"`
	Mode        MonitoringMode `json:"mode"`
	Keywords    []string       `json:"keywords,omitempty"`
	FocusHint   string         `json:"focus_hint,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// IntervalMinutes parses PolicyValue for the interval policy.
func (t *Target) IntervalMinutes() (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(t.PolicyValue))
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", t.PolicyValue, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid interval %q: must be positive", t.PolicyValue)
	}
	return n, nil
}

// KeywordString joins the keyword list the way it is stored and prompted.
func (t *Target) KeywordString() string {
	return strings.Join(t.Keywords, ", ")
}

// SameSettings reports whether o carries the same owner-editable settings.
func (t *Target) SameSettings(o *Target) bool {
	return t.Policy == o.Policy &&
		t.PolicyValue == o.PolicyValue &&
		t.Proxy == o.Proxy &&
		t.Mode == o.Mode &&
		slices.Equal(t.Keywords, o.Keywords) &&
		t.FocusHint == o.FocusHint
}

// SplitKeywords parses a comma separated keyword list, dropping blanks.
func SplitKeywords(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
