package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/store"
	"github.com/MrSnakeDoc/pagewatch/internal/store/memory"
)

const seedYAML = `
users:
  - id: alice
    email: alice@example.com
targets:
  - owner: alice
    url: https://example.com/pricing
    interval_minutes: 30
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestSeedReloaderKeepsTargetState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeFile(t, path, seedYAML)

	s := memory.New()
	sr := NewSeedReloader(path, s, newTestLogger(), time.Hour, nil)

	res, err := sr.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if res.Users != 1 || res.Targets != 1 || res.Failed != 0 {
		t.Fatalf("Reload() = %+v", res)
	}

	targets, _ := s.ListTargets(ctx)
	id := targets[0].ID
	checked := testNow
	if err := s.UpdateTargetState(ctx, id, store.TargetState{Status: domain.StatusChange, LastChecked: &checked}); err != nil {
		t.Fatalf("UpdateTargetState() error = %v", err)
	}

	// Interval edited in the file; runtime state must survive.
	writeFile(t, path, `
users:
  - id: alice
targets:
  - owner: alice
    url: https://example.com/pricing
    interval_minutes: 90
`)
	if _, err := sr.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	got, err := s.GetTarget(ctx, id)
	if err != nil {
		t.Fatalf("GetTarget() error = %v", err)
	}
	if got.PolicyValue != "90" || got.Status != domain.StatusChange || got.LastChecked == nil || !got.LastChecked.Equal(checked) {
		t.Errorf("target after reload = %+v", got)
	}
	if all, _ := s.ListTargets(ctx); len(all) != 1 {
		t.Errorf("reload duplicated targets: %d", len(all))
	}
}

func TestSeedReloaderReleasesCaptchaTarget(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeFile(t, path, seedYAML)

	s := memory.New()
	sr := NewSeedReloader(path, s, newTestLogger(), time.Hour, nil)
	if _, err := sr.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	targets, _ := s.ListTargets(ctx)
	id := targets[0].ID
	checked := testNow
	if err := s.UpdateTargetState(ctx, id, store.TargetState{
		Status:      domain.StatusCaptcha,
		LastError:   "CAPTCHA detected on the website. Manual intervention required.",
		LastChecked: &checked,
	}); err != nil {
		t.Fatalf("UpdateTargetState() error = %v", err)
	}

	// A periodic reload of the same file is not an edit.
	if _, err := sr.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got, _ := s.GetTarget(ctx, id); got.Status != domain.StatusCaptcha {
		t.Fatalf("unchanged reload released the target: status %q", got.Status)
	}

	writeFile(t, path, `
users:
  - id: alice
targets:
  - owner: alice
    url: https://example.com/pricing
    interval_minutes: 30
    proxy: http://new-proxy:8080
`)
	if _, err := sr.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	got, err := s.GetTarget(ctx, id)
	if err != nil {
		t.Fatalf("GetTarget() error = %v", err)
	}
	if got.Status != domain.StatusActive || got.LastError != "" || !got.Status.Schedulable() {
		t.Errorf("edited captcha target = status %q, error %q", got.Status, got.LastError)
	}
	if got.Proxy != "http://new-proxy:8080" {
		t.Errorf("proxy = %q, want the edited one", got.Proxy)
	}
	if got.LastChecked == nil || !got.LastChecked.Equal(checked) {
		t.Errorf("last checked = %v, want %v", got.LastChecked, checked)
	}
}

func TestSeedReloaderRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeFile(t, path, `
users:
  - id: alice
targets:
  - owner: mallory
    url: https://example.com
    interval_minutes: 5
`)
	s := memory.New()
	if _, err := NewSeedReloader(path, s, newTestLogger(), time.Hour, nil).Reload(context.Background()); err == nil {
		t.Fatal("Reload() should fail")
	}
	if users, _ := s.ListUsers(context.Background()); len(users) != 0 {
		t.Errorf("invalid file wrote %d users", len(users))
	}
}

func TestSeedReloaderManualTrigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeFile(t, path, seedYAML)

	s := memory.New()
	trigger := make(chan struct{}, 1)
	sr := NewSeedReloader(path, s, newTestLogger(), time.Hour, trigger)
	if err := sr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sr.Stop()

	writeFile(t, path, seedYAML+`  - owner: alice
    url: https://example.com/stock
    times: ["09:00"]
`)
	trigger <- struct{}{}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if targets, _ := s.ListTargets(ctx); len(targets) == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("manual trigger did not reload the seed file")
}

func TestSeedReloaderStartFailsOnMissingFile(t *testing.T) {
	sr := NewSeedReloader(filepath.Join(t.TempDir(), "missing.yaml"), memory.New(), newTestLogger(), time.Hour, nil)
	if err := sr.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail when the seed file is missing")
	}
}
