package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pickgear/backend/internal/cache/redis"
	"github.com/pickgear/backend/internal/crawler"
	"github.com/pickgear/backend/internal/extractor"
	"github.com/pickgear/backend/internal/generator"
	"github.com/pickgear/backend/internal/llm"
	"github.com/pickgear/backend/internal/metrics"
	"github.com/pickgear/backend/internal/skill"
	"github.com/pickgear/backend/internal/storage/models"
	"github.com/pickgear/backend/pkg/logger"
)

const (
	linksSkillName = "extract-product-links"
	imageSkillName = "extract-product-image"

	maxLinksHTMLChars = 15_000
)

// ReviewSearch finds third-party review pages for a product keyword.
// *crawler.ReviewSearcher satisfies it.
type ReviewSearch interface {
	Search(ctx context.Context, keyword string) ([]crawler.Page, error)
}

// Store is the persistence surface the orchestrator needs. *sqlite.Store
// satisfies it.
type Store interface {
	SaveProduct(p *models.Product) (string, error)
	SaveCrawlHistory(productID string, h *models.CrawlHistory) error
	LatestCrawlHash(url string) (string, error)
	RecordCrawlSkip(url, hash string) error
	UpdateImageURL(productID, imageURL string) error
	SaveWebReviews(productID string, reviews []models.WebReviewReference) error
	SaveProductReview(productID string, review *models.ProductReview) (string, error)
}

// Orchestrator drives one full pipeline run: discover listing pages, walk
// their product links, extract and validate specs, persist products, then
// enrich each with an image, web review snapshots and a generated critique.
// Failures are isolated at the listing and product level; one broken page
// never aborts the run.
type Orchestrator struct {
	store    Store
	cache    *redis.Client
	crawler  crawler.Crawler
	searcher ReviewSearch
	runner   llm.Runner
	skills   skill.Store
	extract  *extractor.Extractor
	critique *generator.CritiqueService
	images   *Images

	maxLinksPerListing int
	hashTTL            time.Duration
}

type OrchestratorConfig struct {
	MaxLinksPerListing int
	HashTTL            time.Duration
}

func NewOrchestrator(
	store Store,
	cache *redis.Client,
	c crawler.Crawler,
	searcher ReviewSearch,
	runner llm.Runner,
	skills skill.Store,
	extract *extractor.Extractor,
	critique *generator.CritiqueService,
	images *Images,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.MaxLinksPerListing <= 0 {
		cfg.MaxLinksPerListing = 10
	}
	if cfg.HashTTL <= 0 {
		cfg.HashTTL = 72 * time.Hour
	}
	return &Orchestrator{
		store:              store,
		cache:              cache,
		crawler:            c,
		searcher:           searcher,
		runner:             runner,
		skills:             skills,
		extract:            extract,
		critique:           critique,
		images:             images,
		maxLinksPerListing: cfg.MaxLinksPerListing,
		hashTTL:            cfg.HashTTL,
	}
}

// Run processes the given listing URLs. Returns the number of products
// saved; an error is returned only when the run as a whole cannot proceed.
func (o *Orchestrator) Run(ctx context.Context, listingURLs []string, logf LogFunc) (int, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	saved := 0
	for _, listingURL := range listingURLs {
		if err := ctx.Err(); err != nil {
			return saved, err
		}

		n, err := o.processListing(ctx, listingURL, logf)
		saved += n
		if err != nil {
			logf("listing %s failed: %v", listingURL, err)
			logger.Warn("Listing processing failed", zap.String("url", listingURL), zap.Error(err))
			metrics.PipelineItemsFailed.WithLabelValues("listing").Inc()
		}
	}

	logf("pipeline finished: %d products saved from %d listings", saved, len(listingURLs))
	return saved, nil
}

func (o *Orchestrator) processListing(ctx context.Context, listingURL string, logf LogFunc) (int, error) {
	page, err := o.crawler.Fetch(ctx, listingURL)
	if err != nil {
		return 0, fmt.Errorf("fetch listing: %w", err)
	}

	links, err := o.productLinks(ctx, page)
	if err != nil {
		return 0, fmt.Errorf("extract product links: %w", err)
	}
	if len(links) > o.maxLinksPerListing {
		links = links[:o.maxLinksPerListing]
	}
	logf("listing %s: %d product links", listingURL, len(links))

	saved := 0
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return saved, err
		}

		ok, err := o.processProduct(ctx, link, logf)
		if err != nil {
			logf("product %s failed: %v", link, err)
			logger.Warn("Product processing failed", zap.String("url", link), zap.Error(err))
			metrics.PipelineItemsFailed.WithLabelValues("product").Inc()
			continue
		}
		if ok {
			saved++
		}
	}
	return saved, nil
}

func (o *Orchestrator) productLinks(ctx context.Context, page crawler.Page) ([]string, error) {
	sk, err := skill.Require(o.skills, linksSkillName)
	if err != nil {
		return nil, err
	}

	prompt := skill.InjectContext(sk.UserPrompt, map[string]string{
		"url":  page.URL,
		"html": extractor.Truncate(extractor.CleanHTML(page.HTML), maxLinksHTMLChars),
	})
	resp, err := o.runner.Run(ctx, prompt, llm.Options{
		System:      sk.SystemPrompt,
		Model:       sk.Model,
		Temperature: sk.Temperature,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		URLs []string `json:"urls"`
	}
	if err := extractor.DecodeObject(resp, &payload); err != nil {
		// The skill asks for JSON but a drifting model may answer in
		// prose; salvage whatever URLs appear in the text.
		return ParseDiscoveredURLs(resp), nil
	}
	return payload.URLs, nil
}

// processProduct handles one product URL end to end. The bool result is
// false when the page was skipped because its content has not changed.
func (o *Orchestrator) processProduct(ctx context.Context, productURL string, logf LogFunc) (bool, error) {
	page, err := o.crawler.Fetch(ctx, productURL)
	if err != nil {
		return false, fmt.Errorf("fetch product: %w", err)
	}

	hash := contentHash(page.HTML)
	if o.unchanged(ctx, productURL, hash) {
		logf("skipping %s: content unchanged", productURL)
		// Stamp the crawl anyway so history shows the page was checked.
		if err := o.store.RecordCrawlSkip(productURL, hash); err != nil {
			logger.Warn("Failed to record crawl skip", zap.String("url", productURL), zap.Error(err))
		}
		o.cache.SetHash(ctx, productURL, hash, o.hashTTL)
		return false, nil
	}

	specs, err := o.extract.ExtractSpecs(ctx, page)
	if err != nil {
		return false, err
	}

	validation, err := o.extract.ValidateSpecs(ctx, specs, page)
	if err != nil {
		return false, err
	}
	if !validation.IsValid {
		return false, fmt.Errorf("spec validation rejected %s: %v", productURL, validation.Errors)
	}

	slug := BuildSlug(specs.Maker, specs.Model)
	if slug == "" {
		return false, fmt.Errorf("empty slug for %s (maker=%q model=%q)", productURL, specs.Maker, specs.Model)
	}

	productID, err := o.store.SaveProduct(&models.Product{
		Slug:         slug,
		Specs:        specs,
		AffiliateURL: productURL,
	})
	if err != nil {
		return false, fmt.Errorf("save product: %w", err)
	}
	metrics.ProductsSaved.Inc()
	logf("saved product %s (%s %s)", slug, specs.Maker, specs.Model)

	if err := o.store.SaveCrawlHistory(productID, &models.CrawlHistory{
		URL:           productURL,
		HTMLHash:      hash,
		LastCrawledAt: time.Now(),
	}); err != nil {
		return false, fmt.Errorf("save crawl history: %w", err)
	}
	o.cache.SetHash(ctx, productURL, hash, o.hashTTL)

	// Image processing is best-effort: a product without an image is still
	// a valid product.
	if err := o.attachImage(ctx, productID, slug, page); err != nil {
		logf("image skipped for %s: %v", slug, err)
		metrics.PipelineItemsFailed.WithLabelValues("image").Inc()
	}

	if err := o.attachReview(ctx, productID, specs, logf); err != nil {
		logf("review generation failed for %s: %v", slug, err)
		metrics.PipelineItemsFailed.WithLabelValues("review").Inc()
	}

	return true, nil
}

// unchanged reports whether the page content hash matches the last recorded
// crawl, checking the redis cache before the crawl history table.
func (o *Orchestrator) unchanged(ctx context.Context, url, hash string) bool {
	if cached, ok := o.cache.LastHash(ctx, url); ok {
		return cached == hash
	}
	last, err := o.store.LatestCrawlHash(url)
	if err != nil {
		logger.Warn("Failed to read crawl hash", zap.String("url", url), zap.Error(err))
		return false
	}
	return last != "" && last == hash
}

func (o *Orchestrator) attachImage(ctx context.Context, productID, slug string, page crawler.Page) error {
	sk, err := skill.Require(o.skills, imageSkillName)
	if err != nil {
		return err
	}

	prompt := skill.InjectContext(sk.UserPrompt, map[string]string{
		"url":  page.URL,
		"html": extractor.Truncate(page.HTML, maxLinksHTMLChars),
	})
	resp, err := o.runner.Run(ctx, prompt, llm.Options{
		System:      sk.SystemPrompt,
		Model:       sk.Model,
		Temperature: sk.Temperature,
	})
	if err != nil {
		return err
	}

	var payload struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := extractor.DecodeObject(resp, &payload); err != nil {
		return err
	}
	if payload.ImageURL == "" {
		return fmt.Errorf("no image url found on %s", page.URL)
	}

	publicURL, err := o.images.Process(ctx, payload.ImageURL, slug)
	if err != nil {
		return err
	}
	return o.store.UpdateImageURL(productID, publicURL)
}

func (o *Orchestrator) attachReview(ctx context.Context, productID string, specs models.ProductSpecs, logf LogFunc) error {
	keyword := specs.Maker + " " + specs.Model
	pages, err := o.searcher.Search(ctx, keyword)
	if err != nil {
		logf("web review search failed for %q: %v", keyword, err)
		pages = nil
	}

	webReviews, err := o.extract.ExtractWebReviews(ctx, pages)
	if err != nil {
		logf("web review extraction failed for %q: %v", keyword, err)
		webReviews = nil
	}
	if err := o.store.SaveWebReviews(productID, webReviews); err != nil {
		return fmt.Errorf("save web reviews: %w", err)
	}

	review, err := o.critique.WriteComprehensiveReview(ctx, specs, webReviews)
	if err != nil {
		return err
	}
	if _, err := o.store.SaveProductReview(productID, review); err != nil {
		return fmt.Errorf("save product review: %w", err)
	}
	return nil
}

func contentHash(html string) string {
	sum := sha256.Sum256([]byte(html))
	return hex.EncodeToString(sum[:])
}
