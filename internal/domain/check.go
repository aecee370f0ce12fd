package domain

import "time"

// CheckRecord is the immutable outcome of one executed check.
type CheckRecord struct {
	ID             int64         `json:"id"`
	TargetID       int64         `json:"target_id"`
	CheckedAt      time.Time     `json:"checked_at"`
	ScreenshotPath string        `json:"screenshot_path,omitempty"`
	HTMLPath       string        `json:"html_path,omitempty"`
	DiffPath       string        `json:"diff_path,omitempty"`
	RawVerdict     string        `json:"raw_verdict,omitempty"`
	ChangeDetected bool          `json:"change_detected"`
	Significance   string        `json:"significance,omitempty"`
	Summary        string        `json:"summary,omitempty"`
	Error          string        `json:"error,omitempty"`
	Latency        time.Duration `json:"latency"`
}

// Artifacts lists the non-empty artifact paths of the record.
func (c *CheckRecord) Artifacts() []string {
	var out []string
	for _, p := range []string{c.ScreenshotPath, c.HTMLPath, c.DiffPath} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
