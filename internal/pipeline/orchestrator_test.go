package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pickgear/backend/internal/crawler"
	"github.com/pickgear/backend/internal/extractor"
	"github.com/pickgear/backend/internal/generator"
	"github.com/pickgear/backend/internal/llm"
	"github.com/pickgear/backend/internal/storage/models"
)

type memStore struct {
	mu         sync.Mutex
	products   map[string]string // slug -> id
	hashes     map[string]string // url -> last hash
	histories  int
	webReviews int
	reviews    int
	images     int
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[string]string),
		hashes:   make(map[string]string),
	}
}

func (m *memStore) SaveProduct(p *models.Product) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.products[p.Slug]
	if !ok {
		id = fmt.Sprintf("id-%d", len(m.products)+1)
		m.products[p.Slug] = id
	}
	return id, nil
}

func (m *memStore) SaveCrawlHistory(productID string, h *models.CrawlHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories++
	m.hashes[h.URL] = h.HTMLHash
	return nil
}

func (m *memStore) LatestCrawlHash(url string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hashes[url], nil
}

func (m *memStore) RecordCrawlSkip(url, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hashes[url]; !ok {
		return nil
	}
	m.histories++
	m.hashes[url] = hash
	return nil
}

func (m *memStore) UpdateImageURL(productID, imageURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images++
	return nil
}

func (m *memStore) SaveWebReviews(productID string, reviews []models.WebReviewReference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webReviews += len(reviews)
	return nil
}

func (m *memStore) SaveProductReview(productID string, review *models.ProductReview) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews++
	return "review-id", nil
}

type fakeGen struct{}

func (fakeGen) GenerateProductStrategy(ctx context.Context, specs models.ProductSpecs) (models.ProductStrategy, error) {
	return models.ProductStrategy{Positioning: "mid-range"}, nil
}
func (fakeGen) AnalyzeWebSentiments(ctx context.Context, reviews []models.WebReviewReference) (models.SentimentAnalysis, error) {
	return models.SentimentAnalysis{OverallScore: 70, Reliability: models.ReliabilityLow}, nil
}
func (fakeGen) GenerateCritiqueArticle(ctx context.Context, specs models.ProductSpecs, sentiment models.SentimentAnalysis, strategy models.ProductStrategy) (*models.ProductReview, error) {
	return &models.ProductReview{Summary: "fine laptop"}, nil
}
func (fakeGen) GenerateComparison(ctx context.Context, a, b string) (string, error) {
	return "comparison", nil
}

type searchFunc func(ctx context.Context, keyword string) ([]crawler.Page, error)

func (f searchFunc) Search(ctx context.Context, keyword string) ([]crawler.Page, error) {
	return f(ctx, keyword)
}

func orchestratorSkills() skillMap {
	return skillMap{
		"extract-product-links":  {UserPrompt: "links: {{html}}"},
		"extract-product-image":  {UserPrompt: "image: {{html}}"},
		"extract-product-specs":  {UserPrompt: "specs: {{html}}"},
		"validate-product-specs": {UserPrompt: "validate: {{specs}} {{html}}"},
		"extract-web-reviews":    {UserPrompt: "reviews: {{pages}}"},
	}
}

// orchestratorRunner answers each skill prompt from canned responses and
// counts spec extraction calls.
type orchestratorRunner struct {
	mu        sync.Mutex
	specCalls int
}

func (r *orchestratorRunner) Run(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	switch {
	case strings.HasPrefix(prompt, "links:"):
		return `{"urls":["https://shop.example.com/p/good","https://shop.example.com/p/bad"]}`, nil
	case strings.HasPrefix(prompt, "specs:"):
		r.mu.Lock()
		r.specCalls++
		r.mu.Unlock()
		return `{"maker":"LG","model":"Gram 17","cpu":"Ultra 7","ram":16,"storage":"512GB","gpu":"Arc","display_size":17,"weight":1.35,"os":"Windows 11","price":2190000}`, nil
	case strings.HasPrefix(prompt, "validate:"):
		return `{"isValid":true,"errors":[]}`, nil
	case strings.HasPrefix(prompt, "image:"):
		return `{"imageUrl":""}`, nil
	case strings.HasPrefix(prompt, "reviews:"):
		return `{"reviews":[{"source":"blog","url":"https://r.example.com","summaryText":"good","sentiment":"POSITIVE"}]}`, nil
	default:
		return "", fmt.Errorf("unexpected prompt %q", prompt)
	}
}

func newTestOrchestrator(store Store, fetch crawlerFunc, search searchFunc, runner llm.Runner) *Orchestrator {
	skills := orchestratorSkills()
	extract := extractor.New(runner, skills)
	critique := generator.NewCritiqueService(fakeGen{})
	images := NewImages("", "/images/products")
	return NewOrchestrator(store, nil, fetch, search, runner, skills, extract, critique, images,
		OrchestratorConfig{MaxLinksPerListing: 10})
}

func TestOrchestratorProductFailureIsolated(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	runner := &orchestratorRunner{}

	fetch := crawlerFunc(func(ctx context.Context, url string) (crawler.Page, error) {
		if strings.HasSuffix(url, "/bad") {
			return crawler.Page{}, fmt.Errorf("navigation timeout")
		}
		return crawler.Page{URL: url, HTML: "<html><body>page " + url + "</body></html>"}, nil
	})
	search := searchFunc(func(ctx context.Context, keyword string) ([]crawler.Page, error) {
		return []crawler.Page{{URL: "https://r.example.com", HTML: "<html>review</html>"}}, nil
	})

	o := newTestOrchestrator(store, fetch, search, runner)
	saved, err := o.Run(context.Background(), []string{"https://shop.example.com/laptops"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if saved != 1 {
		t.Errorf("Run() saved = %d, want 1", saved)
	}
	if _, ok := store.products["lg-gram-17"]; !ok {
		t.Errorf("product not saved, have %v", store.products)
	}
	if store.histories != 1 {
		t.Errorf("crawl histories = %d, want 1", store.histories)
	}
	if store.webReviews != 1 {
		t.Errorf("web reviews = %d, want 1", store.webReviews)
	}
	if store.reviews != 1 {
		t.Errorf("product reviews = %d, want 1", store.reviews)
	}
}

func TestOrchestratorSkipsUnchangedContent(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	runner := &orchestratorRunner{}

	fetch := crawlerFunc(func(ctx context.Context, url string) (crawler.Page, error) {
		return crawler.Page{URL: url, HTML: "<html><body>stable content</body></html>"}, nil
	})
	search := searchFunc(func(ctx context.Context, keyword string) ([]crawler.Page, error) {
		return nil, nil
	})

	o := newTestOrchestrator(store, fetch, search, runner)

	if _, err := o.Run(context.Background(), []string{"https://shop.example.com/laptops"}, nil); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	firstSpecCalls := runner.specCalls
	firstHistories := store.histories

	// Second run sees identical HTML for the product that succeeded before;
	// its extraction is skipped entirely.
	saved, err := o.Run(context.Background(), []string{"https://shop.example.com/laptops"}, nil)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if saved != 0 {
		t.Errorf("second Run() saved = %d, want 0", saved)
	}
	if runner.specCalls != firstSpecCalls {
		t.Errorf("spec extraction ran %d more times on unchanged content",
			runner.specCalls-firstSpecCalls)
	}
	// A skip still stamps the crawl, so history records the page was checked.
	if store.histories <= firstHistories {
		t.Errorf("crawl history rows = %d after skip run, want more than %d",
			store.histories, firstHistories)
	}
}

func TestOrchestratorRejectsInvalidSpecs(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	runner := runnerFunc(func(ctx context.Context, prompt string, opts llm.Options) (string, error) {
		switch {
		case strings.HasPrefix(prompt, "links:"):
			return `{"urls":["https://shop.example.com/p/one"]}`, nil
		case strings.HasPrefix(prompt, "specs:"):
			return `{"maker":"LG","model":"Gram 17"}`, nil
		case strings.HasPrefix(prompt, "validate:"):
			return `{"isValid":false,"errors":["price does not match the page"]}`, nil
		default:
			return "", fmt.Errorf("unexpected prompt %q", prompt)
		}
	})

	fetch := crawlerFunc(func(ctx context.Context, url string) (crawler.Page, error) {
		return crawler.Page{URL: url, HTML: "<html></html>"}, nil
	})
	search := searchFunc(func(ctx context.Context, keyword string) ([]crawler.Page, error) {
		return nil, nil
	})

	o := newTestOrchestrator(store, fetch, search, runner)
	saved, err := o.Run(context.Background(), []string{"https://shop.example.com/laptops"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if saved != 0 {
		t.Errorf("Run() saved = %d, want 0", saved)
	}
	if len(store.products) != 0 {
		t.Errorf("rejected product was saved: %v", store.products)
	}
}
