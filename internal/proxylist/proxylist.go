// Package proxylist reads a public list of HTTP proxies used as screenshot
// fallbacks. Every failure yields an empty list.
package proxylist

import (
	"bufio"
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/utils"
)

const (
	DefaultURL     = "https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/http.txt"
	DefaultTimeout = 5 * time.Second
	DefaultSample  = 3
)

type Source struct {
	url     string
	client  *http.Client
	sample  int
	shuffle func(n int, swap func(i, j int))
	log     logger.Logger
}

// New returns a Source reading url. An empty url disables the list.
func New(url string, log logger.Logger) *Source {
	return &Source{
		url:     url,
		client:  &http.Client{Timeout: DefaultTimeout},
		sample:  DefaultSample,
		shuffle: rand.Shuffle,
		log:     log,
	}
}

// Random returns up to n proxies picked at random, each with an http://
// scheme.
func (s *Source) Random(ctx context.Context) []string {
	if s == nil || s.url == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		s.log.Warn("proxy list request", logger.Error(err))
		return nil
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("proxy list unavailable", logger.Error(err))
		return nil
	}
	defer utils.DrainClose(resp.Body)
	if resp.StatusCode != http.StatusOK {
		s.log.Warn("proxy list unavailable", logger.Int("status", resp.StatusCode))
		return nil
	}

	all := parse(io.LimitReader(resp.Body, 4<<20))
	if len(all) == 0 {
		return nil
	}
	s.shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if len(all) > s.sample {
		all = all[:s.sample]
	}
	for i, p := range all {
		all[i] = "http://" + p
	}
	return all
}

// Fallbacks returns the proxies used after the first screenshot attempt:
// the backup proxy first, then random public ones.
func (s *Source) Fallbacks(ctx context.Context, backup string) []string {
	var out []string
	if backup != "" {
		out = append(out, backup)
	}
	return append(out, s.Random(ctx)...)
}

func parse(r io.Reader) []string {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
