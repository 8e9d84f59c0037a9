package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pickgear/backend/internal/storage/models"
)

// SaveProduct upserts by slug. A re-crawl of an existing product overwrites
// its spec fields but keeps the original ID and CreatedAt, so references from
// reviews and crawl history stay valid. Returns the stable product ID.
func (s *Store) SaveProduct(p *models.Product) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRow(`SELECT id FROM products WHERE slug = ?`, p.Slug).Scan(&existingID)
	now := time.Now()

	switch {
	case err == sql.ErrNoRows:
		id := p.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err = tx.Exec(`
			INSERT INTO products
				(id, slug, maker, model, cpu, ram, storage, gpu, display_size,
				 weight, os, price, image_url, affiliate_url, category_id,
				 created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, p.Slug, p.Specs.Maker, p.Specs.Model, p.Specs.CPU, p.Specs.RAM,
			p.Specs.Storage, p.Specs.GPU, p.Specs.DisplaySize, p.Specs.Weight,
			p.Specs.OS, p.Specs.Price, p.ImageURL, p.AffiliateURL, p.CategoryID,
			now.Unix(), now.Unix())
		if err != nil {
			return "", fmt.Errorf("failed to insert product: %w", err)
		}
		existingID = id
	case err != nil:
		return "", fmt.Errorf("failed to look up product: %w", err)
	default:
		_, err = tx.Exec(`
			UPDATE products SET
				maker = ?, model = ?, cpu = ?, ram = ?, storage = ?, gpu = ?,
				display_size = ?, weight = ?, os = ?, price = ?,
				affiliate_url = ?, category_id = ?, updated_at = ?
			WHERE id = ?`,
			p.Specs.Maker, p.Specs.Model, p.Specs.CPU, p.Specs.RAM,
			p.Specs.Storage, p.Specs.GPU, p.Specs.DisplaySize, p.Specs.Weight,
			p.Specs.OS, p.Specs.Price, p.AffiliateURL, p.CategoryID,
			now.Unix(), existingID)
		if err != nil {
			return "", fmt.Errorf("failed to update product: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit product: %w", err)
	}
	return existingID, nil
}

// FindBySlug returns nil without error when no product matches.
func (s *Store) FindBySlug(slug string) (*models.Product, error) {
	row := s.db.QueryRow(`
		SELECT id, slug, maker, model, cpu, ram, storage, gpu, display_size,
		       weight, os, price, image_url, affiliate_url, category_id,
		       created_at, updated_at
		FROM products WHERE slug = ?`, slug)
	return scanProduct(row)
}

func scanProduct(row *sql.Row) (*models.Product, error) {
	var p models.Product
	var createdAt, updatedAt int64
	err := row.Scan(&p.ID, &p.Slug, &p.Specs.Maker, &p.Specs.Model,
		&p.Specs.CPU, &p.Specs.RAM, &p.Specs.Storage, &p.Specs.GPU,
		&p.Specs.DisplaySize, &p.Specs.Weight, &p.Specs.OS, &p.Specs.Price,
		&p.ImageURL, &p.AffiliateURL, &p.CategoryID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

func (s *Store) UpdateImageURL(productID, imageURL string) error {
	_, err := s.db.Exec(`UPDATE products SET image_url = ?, updated_at = ? WHERE id = ?`,
		imageURL, time.Now().Unix(), productID)
	if err != nil {
		return fmt.Errorf("failed to update image url: %w", err)
	}
	return nil
}

// SaveCrawlHistory appends a crawl record. History is never updated in place.
func (s *Store) SaveCrawlHistory(productID string, h *models.CrawlHistory) error {
	_, err := s.db.Exec(`
		INSERT INTO crawl_history (product_id, url, html_hash, last_crawled_at)
		VALUES (?, ?, ?, ?)`,
		productID, h.URL, h.HTMLHash, h.LastCrawledAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save crawl history: %w", err)
	}
	return nil
}

// LatestCrawlHash returns the most recent html hash recorded for a URL, or
// "" when the URL has never been crawled.
func (s *Store) LatestCrawlHash(url string) (string, error) {
	var hash string
	err := s.db.QueryRow(`
		SELECT html_hash FROM crawl_history
		WHERE url = ? ORDER BY last_crawled_at DESC, id DESC LIMIT 1`, url).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query crawl hash: %w", err)
	}
	return hash, nil
}

// RecordCrawlSkip appends a crawl record for a page whose content hash was
// unchanged, reusing the product of the most recent crawl so change
// detection timestamps stay fresh for stable pages. A URL with no prior
// history is a no-op.
func (s *Store) RecordCrawlSkip(url, hash string) error {
	var productID string
	err := s.db.QueryRow(`
		SELECT product_id FROM crawl_history
		WHERE url = ? ORDER BY last_crawled_at DESC, id DESC LIMIT 1`, url).Scan(&productID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query crawl history: %w", err)
	}

	return s.SaveCrawlHistory(productID, &models.CrawlHistory{
		URL:           url,
		HTMLHash:      hash,
		LastCrawledAt: time.Now(),
	})
}

// SaveWebReviews stores third-party review snapshots for a product. An empty
// slice is a no-op so callers do not need to special-case products with no
// search results.
func (s *Store) SaveWebReviews(productID string, reviews []models.WebReviewReference) error {
	if len(reviews) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, r := range reviews {
		_, err := tx.Exec(`
			INSERT INTO web_review_refs (product_id, source, url, summary_text, sentiment, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			productID, r.Source, r.URL, r.SummaryText, string(r.Sentiment), now)
		if err != nil {
			return fmt.Errorf("failed to save web review: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) WebReviews(productID string) ([]models.WebReviewReference, error) {
	rows, err := s.db.Query(`
		SELECT source, url, summary_text, sentiment
		FROM web_review_refs WHERE product_id = ? ORDER BY id`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query web reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.WebReviewReference
	for rows.Next() {
		var r models.WebReviewReference
		var sentiment string
		if err := rows.Scan(&r.Source, &r.URL, &r.SummaryText, &sentiment); err != nil {
			return nil, fmt.Errorf("failed to scan web review: %w", err)
		}
		r.Sentiment = models.NormalizeSentiment(sentiment)
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// SaveProductReview appends a generated review. Older reviews for the same
// product are kept; the latest by creation time is the one served.
func (s *Store) SaveProductReview(productID string, review *models.ProductReview) (string, error) {
	id := uuid.New().String()

	pros, err := json.Marshal(review.Pros)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pros: %w", err)
	}
	cons, err := json.Marshal(review.Cons)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cons: %w", err)
	}
	highlights, err := json.Marshal(review.SpecHighlights)
	if err != nil {
		return "", fmt.Errorf("failed to marshal spec highlights: %w", err)
	}

	var strategy, sentiment sql.NullString
	if review.Strategy != nil {
		b, err := json.Marshal(review.Strategy)
		if err != nil {
			return "", fmt.Errorf("failed to marshal strategy: %w", err)
		}
		strategy = sql.NullString{String: string(b), Valid: true}
	}
	if review.SentimentAnalysis != nil {
		b, err := json.Marshal(review.SentimentAnalysis)
		if err != nil {
			return "", fmt.Errorf("failed to marshal sentiment analysis: %w", err)
		}
		sentiment = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO product_reviews
			(id, product_id, summary, pros, cons, recommended_for,
			 not_recommended_for, spec_highlights, strategy, sentiment_analysis,
			 created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, productID, review.Summary, string(pros), string(cons),
		review.RecommendedFor, review.NotRecommendedFor, string(highlights),
		strategy, sentiment, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to save product review: %w", err)
	}
	return id, nil
}

// LatestProductReview returns the most recent review for a product, or nil
// when none has been generated yet.
func (s *Store) LatestProductReview(productID string) (*models.ProductReview, error) {
	row := s.db.QueryRow(`
		SELECT id, product_id, summary, pros, cons, recommended_for,
		       not_recommended_for, spec_highlights, strategy, sentiment_analysis,
		       created_at
		FROM product_reviews
		WHERE product_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, productID)

	var r models.ProductReview
	var pros, cons, highlights string
	var strategy, sentiment sql.NullString
	var createdAt int64
	err := row.Scan(&r.ID, &r.ProductID, &r.Summary, &pros, &cons,
		&r.RecommendedFor, &r.NotRecommendedFor, &highlights,
		&strategy, &sentiment, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product review: %w", err)
	}

	if err := json.Unmarshal([]byte(pros), &r.Pros); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pros: %w", err)
	}
	if err := json.Unmarshal([]byte(cons), &r.Cons); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cons: %w", err)
	}
	if err := json.Unmarshal([]byte(highlights), &r.SpecHighlights); err != nil {
		return nil, fmt.Errorf("failed to unmarshal spec highlights: %w", err)
	}
	if strategy.Valid {
		var st models.ProductStrategy
		if err := json.Unmarshal([]byte(strategy.String), &st); err != nil {
			return nil, fmt.Errorf("failed to unmarshal strategy: %w", err)
		}
		r.Strategy = &st
	}
	if sentiment.Valid {
		var sa models.SentimentAnalysis
		if err := json.Unmarshal([]byte(sentiment.String), &sa); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sentiment analysis: %w", err)
		}
		r.SentimentAnalysis = &sa
	}
	r.CreatedAt = time.Unix(0, createdAt)
	return &r, nil
}

func encodeMakers(makers []string) string {
	return strings.Join(makers, ",")
}

func decodeMakers(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
