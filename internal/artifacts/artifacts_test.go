package artifacts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/logger"
)

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/a?b=c", "https___example_com_a_b_c"},
		{"plain-name_1", "plain-name_1"},
		{"https://example.com/a/very/long/path/that/keeps/going/on", "https___example_com_a_very_long_path_tha"},
	}
	for _, tt := range tests {
		if got := SafeName(tt.in); got != tt.want {
			t.Errorf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if len(SafeName(tt.in)) > maxSafeLen {
			t.Errorf("SafeName(%q) longer than %d", tt.in, maxSafeLen)
		}
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data"), logger.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestPathLayout(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2025, 3, 14, 9, 5, 7, 0, time.UTC)
	got := s.Path(KindHTML, "https://example.com", ts, "html")
	want := filepath.Join(s.Dir(), "html_https___example_com_20250314_090507.html")
	if got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestWriteDiff(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	url := "https://example.com"

	prev, err := s.WriteHTML(url, ts, "<html><body><h1>Prices</h1><p>Widget 10 EUR</p></body></html>")
	if err != nil {
		t.Fatalf("WriteHTML() error = %v", err)
	}

	path, err := s.WriteDiff(url, ts.Add(time.Minute), prev, "<html><body><h1>Prices</h1><p>Widget 12 EUR</p></body></html>")
	if err != nil {
		t.Fatalf("WriteDiff() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read diff: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "-Widget 10 EUR") || !strings.Contains(text, "+Widget 12 EUR") {
		t.Errorf("diff missing changed lines:\n%s", text)
	}

	same, err := s.WriteDiff(url, ts.Add(2*time.Minute), prev, "<html><body><h1>Prices</h1><p>Widget 10 EUR</p></body></html>")
	if err != nil || same != "" {
		t.Errorf("WriteDiff() identical = %q, %v; want empty", same, err)
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	p, err := s.WriteHTML("https://example.com", time.Now(), "12345")
	if err != nil {
		t.Fatalf("WriteHTML() error = %v", err)
	}
	n, freed := s.Remove(p, "", filepath.Join(s.Dir(), "missing.png"))
	if n != 1 || freed != 5 {
		t.Errorf("Remove() = %d, %d; want 1, 5", n, freed)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
}
