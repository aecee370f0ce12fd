// Package ai wraps the language models: the screenshot change detector and
// the text generator used to word notifications and summaries.
package ai

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
)

// DetectRequest describes one comparison. PrevScreenshot is empty on the
// first check of a target.
type DetectRequest struct {
	URL            string
	PrevScreenshot string
	CurrScreenshot string
	Mode           domain.MonitoringMode
	Keywords       string
	FocusHint      string
	Instruction    string
}

// Detector compares two screenshots. It never fails: problems are reported
// in the verdict's Error field.
type Detector interface {
	Compare(ctx context.Context, req DetectRequest) domain.Verdict
}

// Generator produces free text from a system instruction and a prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// keyPool holds interchangeable API keys. Each call starts at a random key
// and falls through the others in order.
type keyPool struct {
	keys  []string
	start func(n int) int
}

func newKeyPool(keys []string) *keyPool {
	var clean []string
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		clean = append(clean, k)
	}
	return &keyPool{keys: clean, start: rand.IntN}
}

func (p *keyPool) order() []string {
	n := len(p.keys)
	if n == 0 {
		return nil
	}
	first := p.start(n)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, p.keys[(first+i)%n])
	}
	return out
}

func mask(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "..." + key[len(key)-4:]
}
