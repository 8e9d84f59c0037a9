package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/pickgear/backend/internal/generator"
	"github.com/pickgear/backend/internal/storage/models"
)

// fakeContentStore backs the handler and both generator services.
type fakeContentStore struct {
	products map[string]*models.Product
	reviews  map[string]*models.ProductReview
}

func (f *fakeContentStore) FindBySlug(slug string) (*models.Product, error) {
	return f.products[slug], nil
}
func (f *fakeContentStore) LatestProductReview(productID string) (*models.ProductReview, error) {
	return f.reviews[productID], nil
}
func (f *fakeContentStore) WebReviews(productID string) ([]models.WebReviewReference, error) {
	return nil, nil
}
func (f *fakeContentStore) SaveProductReview(productID string, review *models.ProductReview) (string, error) {
	f.reviews[productID] = review
	return "r1", nil
}

type cannedGen struct{}

func (cannedGen) GenerateProductStrategy(ctx context.Context, specs models.ProductSpecs) (models.ProductStrategy, error) {
	return models.ProductStrategy{}, nil
}
func (cannedGen) AnalyzeWebSentiments(ctx context.Context, reviews []models.WebReviewReference) (models.SentimentAnalysis, error) {
	return models.SentimentAnalysis{}, nil
}
func (cannedGen) GenerateCritiqueArticle(ctx context.Context, specs models.ProductSpecs, sentiment models.SentimentAnalysis, strategy models.ProductStrategy) (*models.ProductReview, error) {
	return &models.ProductReview{Summary: "새로 생성된 리뷰"}, nil
}
func (cannedGen) GenerateComparison(ctx context.Context, a, b string) (string, error) {
	return "A가 더 가볍습니다", nil
}

func newContentApp(store *fakeContentStore) *fiber.App {
	critique := generator.NewCritiqueService(cannedGen{})
	reviews := generator.NewReviewService(store, critique)
	comparison := generator.NewComparisonService(store, cannedGen{})

	app := fiber.New()
	h := NewContentHandler(store, reviews, comparison)
	app.Get("/api/v1/products/:slug/review", h.GetReview)
	app.Post("/api/v1/products/:slug/review", h.RegenerateReview)
	app.Post("/api/v1/products/compare", h.Compare)
	return app
}

func seededStore() *fakeContentStore {
	return &fakeContentStore{
		products: map[string]*models.Product{
			"lg-gram-17": {ID: "p1", Slug: "lg-gram-17", Specs: models.ProductSpecs{Maker: "LG", Model: "Gram 17"}},
			"asus-zen":   {ID: "p2", Slug: "asus-zen", Specs: models.ProductSpecs{Maker: "ASUS", Model: "Zenbook"}},
		},
		reviews: map[string]*models.ProductReview{
			"p1": {Summary: "저장된 리뷰"},
		},
	}
}

func TestGetReview(t *testing.T) {
	t.Parallel()

	app := newContentApp(seededStore())
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/products/lg-gram-17/review", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got struct {
		Review models.ProductReview `json:"review"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Review.Summary != "저장된 리뷰" {
		t.Errorf("review = %+v", got.Review)
	}
}

func TestGetReviewMissing(t *testing.T) {
	t.Parallel()

	app := newContentApp(seededStore())

	// Unknown product.
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/products/nope/review", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown product", resp.StatusCode)
	}

	// Known product without a review yet.
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/products/asus-zen/review", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for missing review", resp.StatusCode)
	}
}

func TestRegenerateReview(t *testing.T) {
	t.Parallel()

	store := seededStore()
	app := newContentApp(store)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/products/asus-zen/review", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if store.reviews["p2"] == nil || store.reviews["p2"].Summary != "새로 생성된 리뷰" {
		t.Errorf("saved review = %+v", store.reviews["p2"])
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()

	app := newContentApp(seededStore())

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "ok",
			body:       `{"slugA":"lg-gram-17","slugB":"asus-zen"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "same slug",
			body:       `{"slugA":"lg-gram-17","slugB":"lg-gram-17"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing slug",
			body:       `{"slugA":"lg-gram-17"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown product",
			body:       `{"slugA":"lg-gram-17","slugB":"nope"}`,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/api/v1/products/compare",
				bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}
