// Package screenshot captures full-page screenshots with headless Chrome.
package screenshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/MrSnakeDoc/pagewatch/internal/fetcher"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
)

// CaptchaMessage is returned when the rendered page is a challenge.
const CaptchaMessage = "captcha detected in rendered page"

// Result reports one capture attempt. Message holds the failure reason.
type Result struct {
	OK      bool
	Message string
}

type Capturer interface {
	Capture(ctx context.Context, url, dest, proxy string) Result
}

type Config struct {
	Timeout   time.Duration // whole capture, default 60s
	Settle    time.Duration // wait after load before the shot, default 2s
	Width     int
	Height    int
	Quality   int
	ExecPath  string // empty lets chromedp find Chrome
	UserAgent string
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Settle <= 0 {
		c.Settle = 2 * time.Second
	}
	if c.Width <= 0 {
		c.Width = 1920
	}
	if c.Height <= 0 {
		c.Height = 1080
	}
	if c.Quality <= 0 {
		c.Quality = 90
	}
	return c
}

// Chrome launches a fresh headless browser per capture so each attempt can
// use its own proxy.
type Chrome struct {
	cfg Config
	log logger.Logger
}

func NewChrome(cfg Config, log logger.Logger) *Chrome {
	return &Chrome{cfg: cfg.withDefaults(), log: log}
}

func (c *Chrome) allocatorOptions(proxy string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(c.cfg.Width, c.cfg.Height),
	)
	if c.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ExecPath))
	}
	if c.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.cfg.UserAgent))
	}
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}
	return opts
}

func (c *Chrome) Capture(ctx context.Context, url, dest, proxy string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, c.allocatorOptions(proxy)...)
	defer allocCancel()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	var (
		html string
		buf  []byte
	)
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(c.cfg.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return Result{Message: fmt.Sprintf("navigation failed: %v", err)}
	}
	if fetcher.IsChallengePage(html) {
		return Result{Message: CaptchaMessage}
	}

	if err := chromedp.Run(tabCtx, chromedp.FullScreenshot(&buf, c.cfg.Quality)); err != nil {
		return Result{Message: fmt.Sprintf("screenshot failed: %v", err)}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Result{Message: fmt.Sprintf("create screenshot dir: %v", err)}
	}
	if err := os.WriteFile(dest, buf, 0o644); err != nil {
		return Result{Message: fmt.Sprintf("write screenshot: %v", err)}
	}

	c.log.Debug("screenshot captured",
		logger.String("url", url),
		logger.String("path", dest),
		logger.Bool("proxied", proxy != ""))
	return Result{OK: true, Message: dest}
}
