package domain

import "testing"

func TestVerdictChanged(t *testing.T) {
	tests := []struct {
		name    string
		verdict Verdict
		want    bool
	}{
		{name: "structured true", verdict: Verdict{ChangeDetected: Bool(true)}, want: true},
		{name: "structured false wins over wording", verdict: Verdict{ChangeDetected: Bool(false), Summary: "Change detected in header"}, want: false},
		{name: "legacy phrase", verdict: Verdict{Summary: "New content appeared in the news list"}, want: true},
		{name: "legacy no phrase", verdict: Verdict{Summary: "Page looks the same"}, want: false},
		{name: "empty", verdict: Verdict{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.verdict.Changed(); got != tt.want {
				t.Errorf("Changed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerdictText(t *testing.T) {
	if got := (Verdict{Summary: "  hello "}).Text(); got != "hello" {
		t.Errorf("Text() = %q, want %q", got, "hello")
	}
	if got := (Verdict{Error: "model timeout"}).Text(); got != "model timeout" {
		t.Errorf("Text() = %q, want the error", got)
	}
}

func TestLooksLikeError(t *testing.T) {
	tests := map[string]bool{
		"Error comparing screenshots":  true,
		"request FAILED after retries": true,
		"Unhandled exception":          true,
		"Prices dropped on two items":  false,
		"":                             false,
	}
	for in, want := range tests {
		if got := LooksLikeError(in); got != want {
			t.Errorf("LooksLikeError(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPreference(t *testing.T) {
	tests := []struct {
		pref      Preference
		immediate bool
		summary   bool
		valid     bool
	}{
		{PreferenceImmediate, true, false, true},
		{PreferenceSummary, false, true, true},
		{PreferenceBoth, true, true, true},
		{Preference("weekly"), false, false, false},
	}
	for _, tt := range tests {
		if tt.pref.Immediate() != tt.immediate || tt.pref.Summary() != tt.summary || tt.pref.Valid() != tt.valid {
			t.Errorf("%s: got immediate=%v summary=%v valid=%v", tt.pref, tt.pref.Immediate(), tt.pref.Summary(), tt.pref.Valid())
		}
	}
}
