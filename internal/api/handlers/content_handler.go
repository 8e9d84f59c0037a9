package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pickgear/backend/internal/generator"
	"github.com/pickgear/backend/internal/storage/models"
	"github.com/pickgear/backend/pkg/logger"
)

// ContentStore is the product/review read surface of *sqlite.Store.
type ContentStore interface {
	FindBySlug(slug string) (*models.Product, error)
	LatestProductReview(productID string) (*models.ProductReview, error)
}

type ContentHandler struct {
	store      ContentStore
	reviews    *generator.ReviewService
	comparison *generator.ComparisonService
}

func NewContentHandler(store ContentStore, reviews *generator.ReviewService, comparison *generator.ComparisonService) *ContentHandler {
	return &ContentHandler{store: store, reviews: reviews, comparison: comparison}
}

// GetReview serves the latest generated review for a product.
func (h *ContentHandler) GetReview(c *fiber.Ctx) error {
	slug := c.Params("slug")

	product, err := h.store.FindBySlug(slug)
	if err != nil {
		logger.Error("Failed to load product", zap.String("slug", slug), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load product",
		})
	}
	if product == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Product not found",
		})
	}

	review, err := h.store.LatestProductReview(product.ID)
	if err != nil {
		logger.Error("Failed to load review", zap.String("slug", slug), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load review",
		})
	}
	if review == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No review generated for this product yet",
		})
	}

	return c.JSON(fiber.Map{
		"product": product,
		"review":  review,
	})
}

// RegenerateReview generates a fresh review for a product on demand,
// bypassing the pipeline.
func (h *ContentHandler) RegenerateReview(c *fiber.Ctx) error {
	slug := c.Params("slug")

	review, err := h.reviews.GenerateAndSave(c.Context(), slug)
	if err != nil {
		if generator.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Product not found",
			})
		}
		logger.Error("Failed to generate review", zap.String("slug", slug), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate review",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"review": review})
}

// Compare generates a head-to-head comparison between two products.
func (h *ContentHandler) Compare(c *fiber.Ctx) error {
	var req struct {
		SlugA string `json:"slugA"`
		SlugB string `json:"slugB"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.SlugA == "" || req.SlugB == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "slugA and slugB are required",
		})
	}
	if req.SlugA == req.SlugB {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Cannot compare a product with itself",
		})
	}

	text, err := h.comparison.Compare(c.Context(), req.SlugA, req.SlugB)
	if err != nil {
		if generator.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Product not found",
			})
		}
		logger.Error("Failed to generate comparison",
			zap.String("slug_a", req.SlugA),
			zap.String("slug_b", req.SlugB),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate comparison",
		})
	}

	return c.JSON(fiber.Map{"comparison": text})
}
