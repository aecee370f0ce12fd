// Package prompts holds the editable model instructions. They live in a TOML
// file that can be edited at runtime and reloaded without a restart.
package prompts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/MrSnakeDoc/pagewatch/internal/logger"
)

const (
	Compare      = "compare"
	Notification = "notification"
	Summary      = "summary"
)

var ErrUnknownPrompt = errors.New("unknown prompt")

var defaults = map[string]string{
	Compare: "You are an AI designed to compare screenshots of websites. You will receive two images: " +
		"the previous and the current. Your purpose is to show the change description. Focus on comparing " +
		"old/new screenshot/html only, compare what users want you to focus on. Be analytical and comprehensive.",
	Notification: "You are an AI that summarizes the differences between two website screenshots based on " +
		"user-specified criteria, your purpose is to send a notification on the summary of what is different. " +
		"Write the output with bullet points and explanations. Skip what has been covered in the latest " +
		"notification. Be analytical and comprehensive.",
	Summary: "You are an AI that generates a consolidated summary of website changes from multiple comparison " +
		"reports. Write the output with bullet points and explanations. Skip what has been covered in the " +
		"latest summary notification. Be analytical and comprehensive.",
}

// Default returns the built-in text of a prompt.
func Default(name string) string { return defaults[name] }

// Names lists the known prompts in a stable order.
func Names() []string {
	names := make([]string, 0, len(defaults))
	for n := range defaults {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type fileFormat struct {
	Compare      string `toml:"compare,omitempty"`
	Notification string `toml:"notification,omitempty"`
	Summary      string `toml:"summary,omitempty"`
}

func (f fileFormat) toMap() map[string]string {
	out := make(map[string]string, 3)
	for name, v := range map[string]string{Compare: f.Compare, Notification: f.Notification, Summary: f.Summary} {
		if strings.TrimSpace(v) != "" {
			out[name] = v
		}
	}
	return out
}

func fromMap(m map[string]string) fileFormat {
	return fileFormat{Compare: m[Compare], Notification: m[Notification], Summary: m[Summary]}
}

// Service serves prompt texts. Overrides come from the file at path; a
// prompt without override uses its default.
type Service struct {
	path string
	log  logger.Logger

	mu        sync.RWMutex
	overrides map[string]string
}

// New loads path. A missing file is not an error. An empty path keeps
// everything in memory.
func New(path string, log logger.Logger) (*Service, error) {
	s := &Service{path: path, log: log, overrides: map[string]string{}}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the current text of a prompt.
func (s *Service) Get(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.overrides[name]; ok {
		return v
	}
	return defaults[name]
}

// All returns every prompt with its current text.
func (s *Service) All() map[string]string {
	out := make(map[string]string, len(defaults))
	for _, n := range Names() {
		out[n] = s.Get(n)
	}
	return out
}

// Set stores an override and persists the file. An empty value restores
// the default.
func (s *Service) Set(name, value string) error {
	if _, ok := defaults[name]; !ok {
		return fmt.Errorf("%q: %w", name, ErrUnknownPrompt)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]string, len(s.overrides)+1)
	for k, v := range s.overrides {
		next[k] = v
	}
	if strings.TrimSpace(value) == "" {
		delete(next, name)
	} else {
		next[name] = value
	}

	if err := s.persist(next); err != nil {
		return err
	}
	s.overrides = next
	s.log.Info("prompt updated", logger.String("prompt", name), logger.Bool("default", strings.TrimSpace(value) == ""))
	return nil
}

// Reload rereads the file, replacing in-memory overrides.
func (s *Service) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.overrides = map[string]string{}
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read prompts %s: %w", s.path, err)
	}

	var f fileFormat
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse prompts %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.overrides = f.toMap()
	s.mu.Unlock()
	s.log.Debug("prompts loaded", logger.String("path", s.path), logger.Int("overrides", len(f.toMap())))
	return nil
}

// persist writes through a temp file and a rename so readers never see a
// partial file.
func (s *Service) persist(m map[string]string) error {
	if s.path == "" {
		return nil
	}
	data, err := toml.Marshal(fromMap(m))
	if err != nil {
		return fmt.Errorf("encode prompts: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prompts dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prompts-*.toml")
	if err != nil {
		return fmt.Errorf("create temp prompts file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write prompts: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close prompts: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace prompts file: %w", err)
	}
	return nil
}
