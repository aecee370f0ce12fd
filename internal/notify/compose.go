package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
)

const stampLayout = "2006-01-02 15:04:05"

// SummaryItem is one result folded into a summary.
type SummaryItem struct {
	URL     string
	At      time.Time
	Summary string
}

func ImmediateSubject(url string, changed bool) string {
	if changed {
		return "Change Detected: " + url
	}
	return "Website Check: " + url
}

func SummarySubject(at time.Time) string {
	return "Website Change Summary - " + at.UTC().Format("15:04") + " UTC"
}

func CaptchaSubject(url string) string { return "Website Monitor CAPTCHA: " + url }

func ErrorSubject(url string) string { return "Website Monitor Error: " + url }

// ImmediateText is the message used when no generator rewrote the result.
func ImmediateText(url string, at time.Time, summary string, changed bool, status domain.Status) string {
	if changed {
		return fmt.Sprintf("Change detected on %s at %s:\n\n%s", url, at.Format(stampLayout), summary)
	}
	return fmt.Sprintf("Website check completed for %s at %s:\n\nNo changes detected. Status: %s", url, at.Format(stampLayout), status)
}

func notificationPrompt(url string, at time.Time, summary string) string {
	return fmt.Sprintf("Website: %s\nTime: %s\nChange description: %s", url, at.Format(stampLayout), summary)
}

func summaryHeader(at time.Time) string {
	return fmt.Sprintf("AI Website Monitor Summary for %s UTC:", at.UTC().Format("15:04"))
}

// SummaryText is the bullet list used when no generator wrote a narrative.
func SummaryText(at time.Time, items []SummaryItem) string {
	var b strings.Builder
	b.WriteString(summaryHeader(at))
	b.WriteString("\n\n")
	for _, it := range items {
		fmt.Fprintf(&b, "- %s (%s): %s\n", it.URL, it.At.UTC().Format("15:04"), it.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

func summaryPrompt(items []SummaryItem) string {
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "Site %d: %s (at %s)\nChange description: %s\n\n", i+1, it.URL, it.At.UTC().Format("15:04"), it.Summary)
	}
	return strings.TrimSpace(b.String())
}
