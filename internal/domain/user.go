package domain

// Preference selects how a user receives check results.
type Preference string

const (
	PreferenceImmediate Preference = "immediate"
	PreferenceSummary   Preference = "summary"
	PreferenceBoth      Preference = "both"
)

// Valid reports whether p is one of the known preferences.
func (p Preference) Valid() bool {
	switch p {
	case PreferenceImmediate, PreferenceSummary, PreferenceBoth:
		return true
	}
	return false
}

// Immediate reports whether results are delivered as soon as a check ends.
func (p Preference) Immediate() bool {
	return p == PreferenceImmediate || p == PreferenceBoth
}

// Summary reports whether results are batched into periodic summaries.
func (p Preference) Summary() bool {
	return p == PreferenceSummary || p == PreferenceBoth
}

const DefaultSummaryTimes = "09:00"

// User owns targets and carries delivery settings.
type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email,omitempty"`
	TelegramToken     string     `json:"-"`
	TelegramChatID    string     `json:"telegram_chat_id,omitempty"`
	TeamsWebhook      string     `json:"-"`
	Preference        Preference `json:"notification_preference"`
	SummaryTimes      string     `json:"summary_times"`
	NotifyOnlyChanges bool       `json:"notify_only_changes"`
}

// NewUser returns a user with default settings.
func NewUser(id string) *User {
	return &User{
		ID:                id,
		Preference:        PreferenceImmediate,
		SummaryTimes:      DefaultSummaryTimes,
		NotifyOnlyChanges: true,
	}
}
