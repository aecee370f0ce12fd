package seed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestLoaderExpandsEnvironment(t *testing.T) {
	path := writeSeed(t, `
users:
  - id: alice
    email: alice@example.com
    telegram_token: ${TG_TOKEN}
    notification_preference: both
    summary_times: "09:00,18:00"
    notify_only_changes: false
targets:
  - owner: alice
    url: https://example.com/pricing
    interval_minutes: 60
  - owner: alice
    url: https://example.com/stock
    times: ["08:00", "20:30"]
    mode: specific_elements
    keywords: [price, " stock "]
    proxy: http://proxy:3128
`)
	l := NewLoader(path)
	l.getenv = func(k string) string {
		if k == "TG_TOKEN" {
			return "secret-token"
		}
		return ""
	}

	f, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	users, targets, err := Map(f)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}

	if len(users) != 1 {
		t.Fatalf("users = %d", len(users))
	}
	u := users[0]
	if u.TelegramToken != "secret-token" || u.Preference != domain.PreferenceBoth || u.NotifyOnlyChanges {
		t.Errorf("user = %+v", u)
	}

	if len(targets) != 2 {
		t.Fatalf("targets = %d", len(targets))
	}
	if targets[0].Policy != domain.PolicyInterval || targets[0].PolicyValue != "60" || targets[0].Mode != domain.ModeGeneral {
		t.Errorf("targets[0] = %+v", targets[0])
	}
	second := targets[1]
	if second.Policy != domain.PolicySpecificTimes || second.PolicyValue != "08:00,20:30" {
		t.Errorf("targets[1] policy = %s %q", second.Policy, second.PolicyValue)
	}
	if second.Mode != domain.ModeSpecificElements || strings.Join(second.Keywords, "|") != "price|stock" || second.Proxy != "http://proxy:3128" {
		t.Errorf("targets[1] = %+v", second)
	}
}

func TestUserDefaults(t *testing.T) {
	users, _, err := Map(File{Users: []UserEntry{{ID: "bob"}}})
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	u := users[0]
	if u.Preference != domain.PreferenceImmediate || u.SummaryTimes != domain.DefaultSummaryTimes || !u.NotifyOnlyChanges {
		t.Errorf("defaults = %+v", u)
	}
}

func TestMapReportsEveryProblem(t *testing.T) {
	f := File{
		Users: []UserEntry{
			{ID: "alice"},
			{ID: "alice"},
			{ID: "carol", Preference: "weekly"},
		},
		Targets: []TargetEntry{
			{Owner: "alice", URL: "ftp://example.com", IntervalMinutes: 5},
			{Owner: "alice", URL: "https://example.com"},
			{Owner: "alice", URL: "https://example.com", IntervalMinutes: 5, Times: []string{"09:00"}},
			{Owner: "nobody", URL: "https://example.com", IntervalMinutes: 5},
			{Owner: "alice", URL: "https://example.com", Times: []string{"25:00"}},
			{Owner: "alice", URL: "https://example.com", IntervalMinutes: 5, Mode: "specific_elements"},
		},
	}
	_, _, err := Map(f)
	if err == nil {
		t.Fatal("Map() should fail")
	}
	msg := err.Error()
	for _, want := range []string{
		"users[1]: duplicate id",
		"users[2]: invalid notification_preference",
		"targets[0]: invalid url",
		"targets[1]: missing interval_minutes or times",
		"targets[2]: set either",
		"targets[3]: unknown owner",
		"targets[4]: times",
		"targets[5]: specific_elements mode needs keywords",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q:\n%s", want, msg)
		}
	}
}

func TestLoaderErrors(t *testing.T) {
	if _, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load(); err == nil {
		t.Error("Load() should fail for a missing file")
	}
	if _, err := NewLoader(writeSeed(t, "users: [")).Load(); err == nil {
		t.Error("Load() should fail for invalid yaml")
	}
}
