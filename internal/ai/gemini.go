package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
)

const DefaultGeminiModel = "gemini-2.5-flash"

var errNoKeys = errors.New("no Gemini API keys configured (GEMINI_API_KEY or GEMINI_API_KEY_n)")

// contentModels is the part of *genai.Models used here.
type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Gemini struct {
	model       string
	temperature float32
	pool        *keyPool
	connect     func(ctx context.Context, key string) (contentModels, error)
	readFile    func(name string) ([]byte, error)
	log         logger.Logger

	mu      sync.Mutex
	clients map[string]contentModels
}

func NewGemini(keys []string, model string, log logger.Logger) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{
		model:       model,
		temperature: 0.2,
		pool:        newKeyPool(keys),
		connect:     connectGemini,
		readFile:    os.ReadFile,
		log:         log,
		clients:     make(map[string]contentModels),
	}
}

func connectGemini(ctx context.Context, key string) (contentModels, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

// Configured reports whether at least one key is available.
func (g *Gemini) Configured() bool { return len(g.pool.keys) > 0 }

func (g *Gemini) client(ctx context.Context, key string) (contentModels, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[key]; ok {
		return c, nil
	}
	c, err := g.connect(ctx, key)
	if err != nil {
		return nil, err
	}
	g.clients[key] = c
	return c, nil
}

// generate tries every key until one answers.
func (g *Gemini) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	keys := g.pool.order()
	if len(keys) == 0 {
		return "", errNoKeys
	}

	var lastErr error
	for _, key := range keys {
		c, err := g.client(ctx, key)
		if err != nil {
			lastErr = err
			g.log.Warn("gemini client", logger.String("key", mask(key)), logger.Error(err))
			continue
		}
		resp, err := c.GenerateContent(ctx, g.model, contents, cfg)
		if err != nil {
			lastErr = err
			g.log.Warn("gemini call failed", logger.String("key", mask(key)), logger.Error(err))
			continue
		}
		if text := responseText(resp); text != "" {
			return text, nil
		}
		lastErr = errors.New("empty response")
	}
	return "", fmt.Errorf("all Gemini API keys failed, last error: %w", lastErr)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.Text != "" {
				b.WriteString(part.Text)
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

func (g *Gemini) imagePart(path, missing string) *genai.Part {
	if path == "" {
		return genai.NewPartFromText(missing)
	}
	data, err := g.readFile(path)
	if err != nil {
		g.log.Warn("read screenshot", logger.String("path", path), logger.Error(err))
		return genai.NewPartFromText("(Screenshot loading failed)")
	}
	return genai.NewPartFromBytes(data, "image/png")
}

// Compare sends both screenshots with the instruction and parses the answer.
// Without a previous screenshot the verdict always reports a change: the
// first capture is the new baseline.
func (g *Gemini) Compare(ctx context.Context, req DetectRequest) domain.Verdict {
	parts := []*genai.Part{genai.NewPartFromText(BuildInstruction(req))}
	if req.PrevScreenshot != "" {
		parts = append(parts,
			genai.NewPartFromText("Previous screenshot:"),
			g.imagePart(req.PrevScreenshot, "(No previous screenshot)"),
			genai.NewPartFromText("Current screenshot:"),
			g.imagePart(req.CurrScreenshot, "(No screenshot provided)"),
		)
	} else {
		parts = append(parts, g.imagePart(req.CurrScreenshot, "(No screenshot provided)"))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temperature),
		ResponseMIMEType: "application/json",
	}
	text, err := g.generate(ctx, []*genai.Content{{Role: genai.RoleUser, Parts: parts}}, cfg)
	if err != nil {
		g.log.Error("change detection failed", logger.String("url", req.URL), logger.Error(err))
		return ErrorVerdict(err.Error(), req.FocusHint)
	}

	v := ParseVerdict(text, req.FocusHint)
	if req.PrevScreenshot == "" && v.Error == "" {
		v.ChangeDetected = domain.Bool(true)
	}
	return v
}

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(float32(0.4))}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	text, err := g.generate(ctx, contents, cfg)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
