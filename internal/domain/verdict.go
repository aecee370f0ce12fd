package domain

import (
	"encoding/json"
	"strings"
)

// Verdict is the structured output of the change detector. ChangeDetected
// is nil when the detector did not say.
type Verdict struct {
	ChangeDetected  *bool    `json:"change_detected,omitempty"`
	Significance    string   `json:"significance_level,omitempty"`
	Summary         string   `json:"summary_of_changes,omitempty"`
	Details         []string `json:"detailed_changes,omitempty"`
	FocusAssessment string   `json:"focus_area_assessment,omitempty"`
	Error           string   `json:"error_message,omitempty"`
}

var legacyChangeMarkers = []string{
	"website changed",
	"change detected",
	"difference found",
	"new content",
}

// Changed returns the structured flag. Verdicts without one fall back to
// scanning the summary for the phrases older detector prompts produced.
func (v Verdict) Changed() bool {
	if v.ChangeDetected != nil {
		return *v.ChangeDetected
	}
	lower := strings.ToLower(v.Summary)
	for _, m := range legacyChangeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Text is the human readable summary, or the error when there is none.
func (v Verdict) Text() string {
	if s := strings.TrimSpace(v.Summary); s != "" {
		return s
	}
	return v.Error
}

// JSON renders the verdict for storage. It cannot fail for this type.
func (v Verdict) JSON() string {
	b, _ := json.Marshal(v)
	return string(b)
}

func Bool(b bool) *bool { return &b }

// LooksLikeError reports whether a summary reads like a failure message
// rather than a description of the page.
func LooksLikeError(s string) bool {
	lower := strings.ToLower(s)
	for _, m := range []string{"error", "failed", "exception"} {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
