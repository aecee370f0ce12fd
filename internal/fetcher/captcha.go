package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CaptchaMarkers are the phrases that mark an anti-bot challenge page.
var CaptchaMarkers = []string{"captcha", "recaptcha", "i am not a robot"}

// challengeSelectors match challenge widgets whose markup does not spell
// out any marker phrase.
var challengeSelectors = []string{
	".g-recaptcha",
	".h-captcha",
	".cf-turnstile",
	"#challenge-form",
	"#cf-challenge-running",
	`iframe[src*="recaptcha"]`,
	`iframe[src*="hcaptcha"]`,
	`iframe[src*="challenges.cloudflare.com"]`,
}

// ContainsCaptchaMarker reports whether s contains a marker phrase, ignoring case.
func ContainsCaptchaMarker(s string) bool {
	lower := strings.ToLower(s)
	for _, m := range CaptchaMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// IsChallengePage reports whether an HTML body is an anti-bot challenge.
func IsChallengePage(body string) bool {
	if ContainsCaptchaMarker(body) {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return false
	}
	for _, sel := range challengeSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
