package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/pickgear/backend/internal/metrics"
	"github.com/pickgear/backend/pkg/logger"
)

// blockedResources keeps image/style/font requests off the wire; only the
// DOM matters for extraction and blocking them roughly halves page loads.
var blockedResources = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.webp",
	"*.css", "*.woff", "*.woff2", "*.ttf", "*.otf",
}

// ChromeCrawler owns exactly one headless Chrome process for its lifetime.
// The browser starts lazily on the first Fetch and is reused for every
// subsequent call, amortizing the expensive process startup across a whole
// pipeline run. Close must be called at the end of the run.
type ChromeCrawler struct {
	navTimeout  time.Duration
	settleDelay time.Duration

	mu         sync.Mutex
	browserCtx context.Context
	cancels    []context.CancelFunc
}

var _ Crawler = (*ChromeCrawler)(nil)

func NewChromeCrawler(navTimeout, settleDelay time.Duration) *ChromeCrawler {
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	if settleDelay <= 0 {
		settleDelay = 3 * time.Second
	}
	return &ChromeCrawler{navTimeout: navTimeout, settleDelay: settleDelay}
}

func (c *ChromeCrawler) browser() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browserCtx != nil {
		return c.browserCtx, nil
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(
		context.Background(),
		chromedp.DefaultExecAllocatorOptions[:]...,
	)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// Run with no actions forces the browser process to start now so a
	// missing Chrome binary fails the first Fetch, not a later one.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start headless browser: %w", err)
	}

	c.browserCtx = browserCtx
	c.cancels = []context.CancelFunc{cancelBrowser, cancelAlloc}
	logger.Info("headless browser started")
	return browserCtx, nil
}

func (c *ChromeCrawler) Fetch(ctx context.Context, url string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	base, err := c.browser()
	if err != nil {
		return Page{}, err
	}

	// Each fetch gets its own tab; the tab context must descend from the
	// shared browser context.
	tabCtx, cancelTab := chromedp.NewContext(base)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.navTimeout)
	defer cancelTimeout()

	start := time.Now()
	var html string
	err = chromedp.Run(tabCtx,
		network.Enable(),
		network.SetBlockedURLS(blockedResources),
		chromedp.Navigate(url),
		// Brief settle so JS-rendered content populates after DOM-ready.
		chromedp.Sleep(c.settleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	metrics.CrawlDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PagesCrawled.WithLabelValues("error").Inc()
		return Page{}, fmt.Errorf("crawl %s: %w", url, err)
	}

	metrics.PagesCrawled.WithLabelValues("ok").Inc()
	logger.Debug("page crawled", zap.String("url", url), zap.Int("html_bytes", len(html)))
	return Page{URL: url, HTML: html}, nil
}

// Close tears down the shared browser process. Safe to call more than once.
func (c *ChromeCrawler) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil
	c.browserCtx = nil
	return nil
}
