package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/pickgear/backend/internal/crawler"
	"github.com/pickgear/backend/internal/llm"
	"github.com/pickgear/backend/internal/skill"
)

func TestParseDiscoveredURLs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "plain list",
			text: "https://example.com/a\nhttps://example.com/b",
			want: []string{"https://example.com/a", "https://example.com/b"},
		},
		{
			name: "urls embedded in prose",
			text: "추천 페이지는 https://shop.example.com/laptops?brand=lg 입니다. 참고: https://example.com/list.",
			want: []string{"https://shop.example.com/laptops?brand=lg", "https://example.com/list"},
		},
		{
			name: "trailing punctuation trimmed",
			text: "see https://example.com/a, and https://example.com/b;",
			want: []string{"https://example.com/a", "https://example.com/b"},
		},
		{
			name: "duplicates keep first position",
			text: "https://example.com/a https://example.com/b https://example.com/a",
			want: []string{"https://example.com/a", "https://example.com/b"},
		},
		{
			name: "no urls",
			text: "목록 페이지를 찾지 못했습니다",
			want: []string{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseDiscoveredURLs(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseDiscoveredURLs() = %v, want %v", got, tt.want)
			}
		})
	}
}

type runnerFunc func(ctx context.Context, prompt string, opts llm.Options) (string, error)

func (f runnerFunc) Run(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	return f(ctx, prompt, opts)
}

type skillMap map[string]*skill.Skill

func (m skillMap) FindByName(name string) (*skill.Skill, error) { return m[name], nil }
func (m skillMap) FindAll() ([]*skill.Skill, error)             { return nil, nil }

type crawlerFunc func(ctx context.Context, url string) (crawler.Page, error)

func (f crawlerFunc) Fetch(ctx context.Context, url string) (crawler.Page, error) {
	return f(ctx, url)
}
func (f crawlerFunc) Close() error { return nil }

func discoverySkills() skillMap {
	return skillMap{
		"discover-listing-urls": {
			Name:       "discover-listing-urls",
			UserPrompt: "find listings for {{maker}} in {{category}}",
		},
		"validate-listing-page": {
			Name:       "validate-listing-page",
			UserPrompt: "is {{url}} a {{category}} listing? {{html}}",
		},
	}
}

func TestDiscoveryListingURLs(t *testing.T) {
	t.Parallel()

	verdicts := map[string]string{
		"https://shop.example.com/lg":      "YES, a listing page",
		"https://shop.example.com/samsung": "NO, definitely not a listing page",
	}

	runner := runnerFunc(func(ctx context.Context, prompt string, opts llm.Options) (string, error) {
		if strings.HasPrefix(prompt, "find listings") {
			if strings.Contains(prompt, "LG") {
				return "https://shop.example.com/lg", nil
			}
			return "https://shop.example.com/samsung", nil
		}
		for url, verdict := range verdicts {
			if strings.Contains(prompt, url) {
				return verdict, nil
			}
		}
		return "", fmt.Errorf("unexpected prompt %q", prompt)
	})

	fetch := crawlerFunc(func(ctx context.Context, url string) (crawler.Page, error) {
		return crawler.Page{URL: url, HTML: "<html><body>products</body></html>"}, nil
	})

	d := NewDiscovery(runner, discoverySkills(), fetch)
	got, err := d.ListingURLs(context.Background(), "노트북", []string{"LG", "Samsung"}, nil)
	if err != nil {
		t.Fatalf("ListingURLs() error = %v", err)
	}

	want := []string{"https://shop.example.com/lg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListingURLs() = %v, want %v", got, want)
	}
}

// The validation prompt must carry the category so the model judges the page
// against it, not just "a listing page" in general.
func TestDiscoveryValidationPromptCarriesCategory(t *testing.T) {
	t.Parallel()

	var validationPrompts []string
	runner := runnerFunc(func(ctx context.Context, prompt string, opts llm.Options) (string, error) {
		if strings.HasPrefix(prompt, "find listings") {
			return "https://shop.example.com/monitors", nil
		}
		validationPrompts = append(validationPrompts, prompt)
		return "YES", nil
	})
	fetch := crawlerFunc(func(ctx context.Context, url string) (crawler.Page, error) {
		return crawler.Page{URL: url, HTML: "<html></html>"}, nil
	})

	d := NewDiscovery(runner, discoverySkills(), fetch)
	if _, err := d.ListingURLs(context.Background(), "노트북", []string{"LG"}, nil); err != nil {
		t.Fatalf("ListingURLs() error = %v", err)
	}

	if len(validationPrompts) != 1 {
		t.Fatalf("got %d validation prompts, want 1", len(validationPrompts))
	}
	if !strings.Contains(validationPrompts[0], "노트북") {
		t.Errorf("validation prompt %q does not mention the category", validationPrompts[0])
	}
	if strings.Contains(validationPrompts[0], "{{category}}") {
		t.Errorf("category placeholder left unresolved in %q", validationPrompts[0])
	}
}

// A verdict beginning with anything but YES must reject, even when the text
// mentions YES later.
func TestDiscoveryValidationAnchoredToFirstToken(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(ctx context.Context, prompt string, opts llm.Options) (string, error) {
		if strings.HasPrefix(prompt, "find listings") {
			return "https://shop.example.com/x", nil
		}
		return "NO. If it listed products the answer would be YES.", nil
	})
	fetch := crawlerFunc(func(ctx context.Context, url string) (crawler.Page, error) {
		return crawler.Page{URL: url, HTML: "<html></html>"}, nil
	})

	d := NewDiscovery(runner, discoverySkills(), fetch)
	got, err := d.ListingURLs(context.Background(), "노트북", []string{"LG"}, nil)
	if err != nil {
		t.Fatalf("ListingURLs() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListingURLs() = %v, want none", got)
	}
}

// A maker whose discovery call fails is skipped; the others still run.
func TestDiscoveryMakerFailureIsolated(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(ctx context.Context, prompt string, opts llm.Options) (string, error) {
		if strings.HasPrefix(prompt, "find listings") {
			if strings.Contains(prompt, "HP") {
				return "", fmt.Errorf("model overloaded")
			}
			return "https://shop.example.com/dell", nil
		}
		return "YES", nil
	})
	fetch := crawlerFunc(func(ctx context.Context, url string) (crawler.Page, error) {
		return crawler.Page{URL: url, HTML: "<html></html>"}, nil
	})

	var logged []string
	logf := func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	}

	d := NewDiscovery(runner, discoverySkills(), fetch)
	got, err := d.ListingURLs(context.Background(), "노트북", []string{"HP", "Dell"}, logf)
	if err != nil {
		t.Fatalf("ListingURLs() error = %v", err)
	}
	if len(got) != 1 || got[0] != "https://shop.example.com/dell" {
		t.Errorf("ListingURLs() = %v", got)
	}

	found := false
	for _, line := range logged {
		if strings.Contains(line, "HP") && strings.Contains(line, "failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a log line about the HP failure, got %v", logged)
	}
}
