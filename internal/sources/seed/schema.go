package seed

// File is the root of the seed file.
//
//	users:
//	  - id: alice
//	    email: alice@example.com
//	    notification_preference: both
//	    summary_times: "09:00,18:00"
//	targets:
//	  - owner: alice
//	    url: https://example.com/pricing
//	    interval_minutes: 60
type File struct {
	Users   []UserEntry   `yaml:"users"`
	Targets []TargetEntry `yaml:"targets"`
}

type UserEntry struct {
	ID                string `yaml:"id"`
	Email             string `yaml:"email"`
	TelegramToken     string `yaml:"telegram_token"`
	TelegramChatID    string `yaml:"telegram_chat_id"`
	TeamsWebhook      string `yaml:"teams_webhook"`
	Preference        string `yaml:"notification_preference"`
	SummaryTimes      string `yaml:"summary_times"`
	NotifyOnlyChanges *bool  `yaml:"notify_only_changes"`
}

// TargetEntry sets exactly one of IntervalMinutes and Times.
type TargetEntry struct {
	Owner           string   `yaml:"owner"`
	URL             string   `yaml:"url"`
	IntervalMinutes int      `yaml:"interval_minutes"`
	Times           []string `yaml:"times"`
	Proxy           string   `yaml:"proxy"`
	Mode            string   `yaml:"mode"`
	Keywords        []string `yaml:"keywords"`
	Focus           string   `yaml:"focus"`
}
