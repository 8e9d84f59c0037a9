package generator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pickgear/backend/internal/storage/models"
)

type stubGen struct {
	strategyErr  error
	sentimentErr error
}

func (s stubGen) GenerateProductStrategy(ctx context.Context, specs models.ProductSpecs) (models.ProductStrategy, error) {
	if s.strategyErr != nil {
		return models.ProductStrategy{}, s.strategyErr
	}
	return models.ProductStrategy{Positioning: "value"}, nil
}

func (s stubGen) AnalyzeWebSentiments(ctx context.Context, reviews []models.WebReviewReference) (models.SentimentAnalysis, error) {
	if s.sentimentErr != nil {
		return models.SentimentAnalysis{}, s.sentimentErr
	}
	return models.SentimentAnalysis{OverallScore: 75, Reliability: models.ReliabilityMedium}, nil
}

func (s stubGen) GenerateCritiqueArticle(ctx context.Context, specs models.ProductSpecs, sentiment models.SentimentAnalysis, strategy models.ProductStrategy) (*models.ProductReview, error) {
	return &models.ProductReview{
		Summary:           "summary",
		Strategy:          &strategy,
		SentimentAnalysis: &sentiment,
	}, nil
}

func (s stubGen) GenerateComparison(ctx context.Context, a, b string) (string, error) {
	return fmt.Sprintf("%s vs %s", a, b), nil
}

func TestWriteComprehensiveReview(t *testing.T) {
	t.Parallel()

	svc := NewCritiqueService(stubGen{})
	review, err := svc.WriteComprehensiveReview(context.Background(),
		models.ProductSpecs{Maker: "LG", Model: "Gram"}, nil)
	if err != nil {
		t.Fatalf("WriteComprehensiveReview() error = %v", err)
	}
	if review.Strategy == nil || review.Strategy.Positioning != "value" {
		t.Errorf("Strategy = %+v", review.Strategy)
	}
	if review.SentimentAnalysis == nil || review.SentimentAnalysis.OverallScore != 75 {
		t.Errorf("SentimentAnalysis = %+v", review.SentimentAnalysis)
	}
}

func TestWriteComprehensiveReviewPropagatesSubErrors(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("strategy backend down")
	svc := NewCritiqueService(stubGen{strategyErr: wantErr})
	_, err := svc.WriteComprehensiveReview(context.Background(), models.ProductSpecs{}, nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}

type stubReviewStore struct {
	product *models.Product
	saved   int
}

func (s *stubReviewStore) FindBySlug(slug string) (*models.Product, error) {
	return s.product, nil
}
func (s *stubReviewStore) WebReviews(productID string) ([]models.WebReviewReference, error) {
	return nil, nil
}
func (s *stubReviewStore) SaveProductReview(productID string, review *models.ProductReview) (string, error) {
	s.saved++
	return "r1", nil
}

func TestReviewServiceGenerateAndSave(t *testing.T) {
	t.Parallel()

	store := &stubReviewStore{product: &models.Product{
		ID:   "p1",
		Slug: "lg-gram-17",
		Specs: models.ProductSpecs{
			Maker: "LG", Model: "Gram 17",
		},
	}}
	svc := NewReviewService(store, NewCritiqueService(stubGen{}))

	review, err := svc.GenerateAndSave(context.Background(), "lg-gram-17")
	if err != nil {
		t.Fatalf("GenerateAndSave() error = %v", err)
	}
	if review.Summary != "summary" {
		t.Errorf("Summary = %q", review.Summary)
	}
	if store.saved != 1 {
		t.Errorf("saved %d reviews, want 1", store.saved)
	}
}

func TestReviewServiceUnknownSlug(t *testing.T) {
	t.Parallel()

	svc := NewReviewService(&stubReviewStore{}, NewCritiqueService(stubGen{}))
	_, err := svc.GenerateAndSave(context.Background(), "no-such-product")
	if !IsNotFound(err) {
		t.Errorf("error = %v, want ErrProductNotFound", err)
	}
}

type stubComparisonStore map[string]*models.Product

func (s stubComparisonStore) FindBySlug(slug string) (*models.Product, error) {
	return s[slug], nil
}

func TestComparisonService(t *testing.T) {
	t.Parallel()

	store := stubComparisonStore{
		"lg-gram-17": {Specs: models.ProductSpecs{Maker: "LG", Model: "Gram 17", RAM: 16}},
		"asus-zen":   {Specs: models.ProductSpecs{Maker: "ASUS", Model: "Zenbook", RAM: 32}},
	}
	svc := NewComparisonService(store, stubGen{})

	text, err := svc.Compare(context.Background(), "lg-gram-17", "asus-zen")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if text == "" {
		t.Error("Compare() returned empty text")
	}

	_, err = svc.Compare(context.Background(), "lg-gram-17", "missing")
	if !IsNotFound(err) {
		t.Errorf("error = %v, want ErrProductNotFound", err)
	}
}
