package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pickgear/backend/internal/crawler"
	"github.com/pickgear/backend/internal/llm"
	"github.com/pickgear/backend/internal/skill"
	"github.com/pickgear/backend/pkg/logger"
)

const (
	discoverSkillName = "discover-listing-urls"
	validateSkillName = "validate-listing-page"

	maxValidationHTMLChars = 20_000
)

// LogFunc receives human-readable progress lines. The worker wires it to the
// job's log table; tests usually pass a no-op.
type LogFunc func(format string, args ...any)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// ParseDiscoveredURLs pulls candidate URLs out of free-form LLM text. Order
// is preserved, trailing punctuation is trimmed, and duplicates keep their
// first position.
func ParseDiscoveredURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		u := strings.TrimRight(m, ".,;)")
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}

// Discovery asks the LLM for maker listing pages and keeps only the ones
// that actually look like product listings once fetched.
type Discovery struct {
	runner  llm.Runner
	skills  skill.Store
	crawler crawler.Crawler
}

func NewDiscovery(runner llm.Runner, skills skill.Store, c crawler.Crawler) *Discovery {
	return &Discovery{runner: runner, skills: skills, crawler: c}
}

// ListingURLs runs the two-phase discovery: propose URLs for each maker,
// then fetch and validate each candidate. A maker or candidate that fails is
// logged and skipped; discovery only errors when the skill itself is broken.
func (d *Discovery) ListingURLs(ctx context.Context, category string, makers []string, logf LogFunc) ([]string, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	discoverSk, err := skill.Require(d.skills, discoverSkillName)
	if err != nil {
		return nil, err
	}
	validateSk, err := skill.Require(d.skills, validateSkillName)
	if err != nil {
		return nil, err
	}

	var validated []string
	seen := make(map[string]struct{})

	for _, maker := range makers {
		prompt := skill.InjectContext(discoverSk.UserPrompt, map[string]string{
			"category": category,
			"maker":    maker,
		})
		resp, err := d.runner.Run(ctx, prompt, llm.Options{
			System:      discoverSk.SystemPrompt,
			Model:       discoverSk.Model,
			Temperature: discoverSk.Temperature,
		})
		if err != nil {
			logf("discovery failed for maker %s: %v", maker, err)
			logger.Warn("Listing discovery failed", zap.String("maker", maker), zap.Error(err))
			continue
		}

		candidates := ParseDiscoveredURLs(resp)
		logf("maker %s: %d candidate listing URLs", maker, len(candidates))

		for _, candidate := range candidates {
			if _, ok := seen[candidate]; ok {
				continue
			}
			seen[candidate] = struct{}{}

			ok, err := d.validate(ctx, validateSk, category, candidate)
			if err != nil {
				logf("validation failed for %s: %v", candidate, err)
				continue
			}
			if !ok {
				logf("rejected non-listing page %s", candidate)
				continue
			}
			validated = append(validated, candidate)
			logf("validated listing page %s", candidate)
		}
	}

	return validated, nil
}

// validate fetches a candidate and asks the validation skill whether it is
// a listing page for the given category. Only a response whose first token
// is YES counts as a pass, so "NO, definitely not a listing page" never
// slips through on a substring match.
func (d *Discovery) validate(ctx context.Context, sk *skill.Skill, category, url string) (bool, error) {
	page, err := d.crawler.Fetch(ctx, url)
	if err != nil {
		return false, fmt.Errorf("fetch %s: %w", url, err)
	}

	prompt := skill.InjectContext(sk.UserPrompt, map[string]string{
		"category": category,
		"url":      url,
		"html":     truncateChars(page.HTML, maxValidationHTMLChars),
	})
	resp, err := d.runner.Run(ctx, prompt, llm.Options{
		System:      sk.SystemPrompt,
		Model:       sk.Model,
		Temperature: sk.Temperature,
	})
	if err != nil {
		return false, err
	}

	first, _, _ := strings.Cut(strings.TrimSpace(resp), " ")
	first = strings.TrimRight(first, ".,!:")
	return strings.EqualFold(first, "YES"), nil
}

func truncateChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
