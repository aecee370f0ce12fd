// Package artifacts names, writes and removes the files a check produces:
// screenshots, fetched HTML and unified diffs.
package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/dustin/go-humanize"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/MrSnakeDoc/pagewatch/internal/logger"
)

type Kind string

const (
	KindScreenshot Kind = "screenshot"
	KindHTML       Kind = "html"
	KindDiff       Kind = "diff"
)

const (
	maxSafeLen   = 40
	timestampFmt = "20060102_150405"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SafeName turns a URL into a file name fragment.
func SafeName(url string) string {
	s := unsafeChars.ReplaceAllString(url, "_")
	if len(s) > maxSafeLen {
		s = s[:maxSafeLen]
	}
	return s
}

type Store struct {
	dir string
	log logger.Logger
}

func New(dir string, log logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir %s: %w", dir, err)
	}
	return &Store{dir: dir, log: log}, nil
}

func (s *Store) Dir() string { return s.dir }

// Path returns <dir>/<kind>_<safe-url>_<YYYYmmdd_HHMMSS>.<ext>.
func (s *Store) Path(kind Kind, url string, ts time.Time, ext string) string {
	name := fmt.Sprintf("%s_%s_%s.%s", kind, SafeName(url), ts.UTC().Format(timestampFmt), ext)
	return filepath.Join(s.dir, name)
}

func (s *Store) ScreenshotPath(url string, ts time.Time) string {
	return s.Path(KindScreenshot, url, ts, "png")
}

// WriteHTML stores a fetched page and returns its path.
func (s *Store) WriteHTML(url string, ts time.Time, body string) (string, error) {
	return s.write(s.Path(KindHTML, url, ts, "html"), []byte(body))
}

// WriteDiff writes a unified diff between the HTML stored at prevPath and
// current, both normalised to markdown first. It returns "" when the
// normalised documents are identical.
func (s *Store) WriteDiff(url string, ts time.Time, prevPath, current string) (string, error) {
	prev, err := os.ReadFile(prevPath)
	if err != nil {
		return "", fmt.Errorf("read previous html %s: %w", prevPath, err)
	}
	text, err := Diff(url, string(prev), current)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", nil
	}
	return s.write(s.Path(KindDiff, url, ts, "txt"), []byte(text))
}

// Diff returns the unified diff of two HTML documents after markdown
// normalisation.
func Diff(baseURL, prevHTML, currHTML string) (string, error) {
	conv := md.NewConverter(baseURL, true, nil)
	a, err := conv.ConvertString(prevHTML)
	if err != nil {
		return "", fmt.Errorf("normalise previous html: %w", err)
	}
	b, err := conv.ConvertString(currHTML)
	if err != nil {
		return "", fmt.Errorf("normalise current html: %w", err)
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "previous",
		ToFile:   "current",
		Context:  3,
	})
}

func (s *Store) write(path string, data []byte) (string, error) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", path, err)
	}
	s.log.Debug("artifact written",
		logger.String("path", path),
		logger.String("size", humanize.Bytes(uint64(len(data)))))
	return path, nil
}

// Remove deletes the given files, ignoring empty and already missing paths.
// It returns the number of files and bytes freed.
func (s *Store) Remove(paths ...string) (int, uint64) {
	var (
		n     int
		freed uint64
	)
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				s.log.Warn("stat artifact", logger.String("path", p), logger.Error(err))
			}
			continue
		}
		if err := os.Remove(p); err != nil {
			s.log.Warn("remove artifact", logger.String("path", p), logger.Error(err))
			continue
		}
		n++
		freed += uint64(info.Size())
	}
	if n > 0 {
		s.log.Info("artifacts removed", logger.Int("files", n), logger.String("freed", humanize.Bytes(freed)))
	}
	return n, freed
}
