package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pickgear/backend/pkg/logger"
	"github.com/pickgear/backend/pkg/retry"
)

const maxReviewPageBytes = 2 << 20

// ReviewSearcher finds third-party review pages for a product keyword.
// Review posts are mostly server-rendered, so results are fetched over plain
// HTTP rather than through the headless browser.
type ReviewSearcher struct {
	httpClient *http.Client
	maxResults int
	retryCfg   retry.Config
}

func NewReviewSearcher(maxResults int) *ReviewSearcher {
	if maxResults <= 0 {
		maxResults = 3
	}
	cfg := retry.DefaultConfig()
	cfg.Logger = logger.Log
	return &ReviewSearcher{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxResults: maxResults,
		retryCfg:   cfg,
	}
}

// Search returns the rendered bodies of up to maxResults review pages for
// keyword. Per-result fetch failures are logged and skipped; only a failed
// result-page query is an error.
func (s *ReviewSearcher) Search(ctx context.Context, keyword string) ([]Page, error) {
	query := url.QueryEscape(keyword + " 리뷰")
	searchURL := fmt.Sprintf("https://www.google.com/search?q=%s&num=%d", query, s.maxResults*2)

	body, err := retry.DoWithResult(ctx, s.retryCfg, func() ([]byte, error) {
		return s.get(ctx, searchURL)
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}

	links, err := parseResultLinks(body)
	if err != nil {
		return nil, fmt.Errorf("parse search results for %q: %w", keyword, err)
	}

	var pages []Page
	for _, link := range links {
		if len(pages) >= s.maxResults {
			break
		}
		content, err := s.get(ctx, link)
		if err != nil {
			logger.Warn("failed to fetch review page", zap.String("url", link), zap.Error(err))
			continue
		}
		pages = append(pages, Page{URL: link, HTML: string(content)})
	}

	logger.Info("review search completed",
		zap.String("keyword", keyword),
		zap.Int("pages", len(pages)),
	)
	return pages, nil
}

func (s *ReviewSearcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxReviewPageBytes))
}

// parseResultLinks pulls organic result URLs out of a search result page,
// skipping ad and internal navigation links.
func parseResultLinks(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		link := normalizeResultHref(href)
		if link == "" || seen[link] {
			return
		}
		seen[link] = true
		links = append(links, link)
	})
	return links, nil
}

func normalizeResultHref(href string) string {
	// Result links come through as /url?q=<target>&... redirects.
	if target, ok := strings.CutPrefix(href, "/url?q="); ok {
		if i := strings.IndexByte(target, '&'); i >= 0 {
			target = target[:i]
		}
		href, _ = url.QueryUnescape(target)
	}
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return ""
	}
	if strings.Contains(href, "google.com") {
		return ""
	}
	return href
}
