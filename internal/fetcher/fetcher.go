// Package fetcher downloads target pages with bounded retries.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/utils"
)

// ErrChallenge means the page is an anti-bot challenge. It is never retried.
var ErrChallenge = errors.New("captcha detected")

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

type Config struct {
	Attempts     int           // total attempts, default 3
	Timeout      time.Duration // per attempt, default 15s
	BaseDelay    time.Duration // wait after failed attempt i is BaseDelay * 2^i, default 1s
	MaxBodyBytes int64         // default 10 MiB
	UserAgent    string
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	return c
}

// Result is a successful fetch.
type Result struct {
	Body       string
	StatusCode int
	Attempts   int
	Latency    time.Duration // duration of the successful attempt
}

// SleepFunc waits d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	sleep     SleepFunc
	log       logger.Logger
}

func New(cfg Config, log logger.Logger) *Fetcher {
	return &Fetcher{
		cfg:       cfg.withDefaults(),
		transport: http.DefaultTransport,
		sleep:     sleepCtx,
		log:       log,
	}
}

// WithSleep replaces the backoff wait, for tests.
func (f *Fetcher) WithSleep(s SleepFunc) *Fetcher {
	f.sleep = s
	return f
}

func (f *Fetcher) client(proxy string) (*http.Client, error) {
	if proxy == "" {
		return &http.Client{Transport: f.transport}, nil
	}
	u, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", proxy, err)
	}
	base, ok := f.transport.(*http.Transport)
	if !ok {
		base = http.DefaultTransport.(*http.Transport)
	}
	tr := base.Clone()
	tr.Proxy = http.ProxyURL(u)
	return &http.Client{Transport: tr}, nil
}

// Fetch GETs rawURL, retrying transport failures and HTTP errors with
// exponential backoff. A challenge page returns ErrChallenge at once.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, proxy string) (*Result, error) {
	client, err := f.client(proxy)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < f.cfg.Attempts; attempt++ {
		res, err := f.attempt(ctx, client, rawURL)
		if err == nil {
			res.Attempts = attempt + 1
			return res, nil
		}
		if errors.Is(err, ErrChallenge) {
			return nil, err
		}
		lastErr = err

		if attempt == f.cfg.Attempts-1 {
			break
		}
		delay := f.cfg.BaseDelay << attempt
		f.log.Warn("fetch failed, retrying",
			logger.String("url", rawURL),
			logger.Int("attempt", attempt+1),
			logger.Duration("backoff", delay),
			logger.Error(err))
		if err := f.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("fetch %s interrupted: %w", rawURL, err)
		}
	}
	return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", rawURL, f.cfg.Attempts, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, client *http.Client, rawURL string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer utils.DrainClose(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	latency := time.Since(start)

	// Challenge pages often come back as 403/503, check them first.
	if IsChallengePage(string(body)) {
		return nil, ErrChallenge
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return &Result{
		Body:       string(body),
		StatusCode: resp.StatusCode,
		Latency:    latency,
	}, nil
}
