package generator

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pickgear/backend/internal/storage/models"
)

// ErrProductNotFound marks lookups for slugs that have never been crawled.
var ErrProductNotFound = errors.New("product not found")

// IsNotFound reports whether err stems from a missing product.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound)
}

// CritiqueService runs the full review-writing flow: sentiment analysis and
// strategy generation first, then the critique article built on both.
type CritiqueService struct {
	gen ContentGenerator
}

func NewCritiqueService(gen ContentGenerator) *CritiqueService {
	return &CritiqueService{gen: gen}
}

// WriteComprehensiveReview produces a critique article for one product.
// Sentiment analysis and strategy generation read disjoint inputs (web
// reviews vs. specs), so they run concurrently to cut wall-clock latency.
func (s *CritiqueService) WriteComprehensiveReview(ctx context.Context, specs models.ProductSpecs, webReviews []models.WebReviewReference) (*models.ProductReview, error) {
	var (
		sentiment models.SentimentAnalysis
		strategy  models.ProductStrategy
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sentiment, err = s.gen.AnalyzeWebSentiments(gctx, webReviews)
		return err
	})
	g.Go(func() error {
		var err error
		strategy, err = s.gen.GenerateProductStrategy(gctx, specs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.gen.GenerateCritiqueArticle(ctx, specs, sentiment, strategy)
}

// ReviewStore is the persistence surface the review flow needs.
type ReviewStore interface {
	FindBySlug(slug string) (*models.Product, error)
	WebReviews(productID string) ([]models.WebReviewReference, error)
	SaveProductReview(productID string, review *models.ProductReview) (string, error)
}

// ReviewService loads a saved product, writes a comprehensive review for it
// and persists the result. Older reviews are retained; the newest is
// authoritative for display.
type ReviewService struct {
	store    ReviewStore
	critique *CritiqueService
}

func NewReviewService(store ReviewStore, critique *CritiqueService) *ReviewService {
	return &ReviewService{store: store, critique: critique}
}

func (s *ReviewService) GenerateAndSave(ctx context.Context, slug string) (*models.ProductReview, error) {
	product, err := s.store.FindBySlug(slug)
	if err != nil {
		return nil, fmt.Errorf("load product %q: %w", slug, err)
	}
	if product == nil {
		return nil, fmt.Errorf("product %q: %w", slug, ErrProductNotFound)
	}

	webReviews, err := s.store.WebReviews(product.ID)
	if err != nil {
		return nil, fmt.Errorf("load web reviews for %q: %w", slug, err)
	}

	review, err := s.critique.WriteComprehensiveReview(ctx, product.Specs, webReviews)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.SaveProductReview(product.ID, review); err != nil {
		return nil, fmt.Errorf("save review for %q: %w", slug, err)
	}
	return review, nil
}

// ComparisonStore is the persistence surface the comparison flow needs.
type ComparisonStore interface {
	FindBySlug(slug string) (*models.Product, error)
}

// ComparisonService generates head-to-head comparison text for two saved
// products.
type ComparisonService struct {
	store ComparisonStore
	gen   ContentGenerator
}

func NewComparisonService(store ComparisonStore, gen ContentGenerator) *ComparisonService {
	return &ComparisonService{store: store, gen: gen}
}

func (s *ComparisonService) Compare(ctx context.Context, slugA, slugB string) (string, error) {
	productA, err := s.loadProduct(slugA)
	if err != nil {
		return "", err
	}
	productB, err := s.loadProduct(slugB)
	if err != nil {
		return "", err
	}

	return s.gen.GenerateComparison(ctx, formatSpecSummary(productA), formatSpecSummary(productB))
}

func (s *ComparisonService) loadProduct(slug string) (*models.Product, error) {
	product, err := s.store.FindBySlug(slug)
	if err != nil {
		return nil, fmt.Errorf("load product %q: %w", slug, err)
	}
	if product == nil {
		return nil, fmt.Errorf("product %q: %w", slug, ErrProductNotFound)
	}
	return product, nil
}

func formatSpecSummary(p *models.Product) string {
	specs := p.Specs
	return fmt.Sprintf("%s %s (CPU: %s, RAM: %gGB, GPU: %s, 화면: %g인치, 무게: %gkg, 가격: %g원)",
		specs.Maker, specs.Model, specs.CPU, specs.RAM, specs.GPU, specs.DisplaySize, specs.Weight, specs.Price)
}
