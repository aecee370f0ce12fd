package domain

import "time"

type NotificationType string

const (
	NotificationImmediate NotificationType = "immediate"
	NotificationSummary   NotificationType = "summary"
)

// Notification is one user-facing message. Summary records have no target
// or check reference; records folded into a summary point at it via SummaryID.
type Notification struct {
	ID                int64            `json:"id"`
	OwnerID           string           `json:"owner_id"`
	Type              NotificationType `json:"type"`
	TargetID          *int64           `json:"target_id,omitempty"`
	CheckID           *int64           `json:"check_id,omitempty"`
	Content           string           `json:"content"`
	ScreenshotPath    string           `json:"screenshot_path,omitempty"`
	Sent              bool             `json:"sent"`
	IncludedInSummary bool             `json:"included_in_summary"`
	SummaryID         *int64           `json:"summary_id,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// PendingEntry is what sits in an owner's pending-notification list.
type PendingEntry struct {
	NotificationID int64     `json:"notification_id"`
	TargetID       int64     `json:"target_id"`
	TargetURL      string    `json:"target_url"`
	OwnerID        string    `json:"owner_id"`
	Summary        string    `json:"summary"`
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	ChangeDetected bool      `json:"change_detected"`
	Timestamp      time.Time `json:"timestamp"`
}
