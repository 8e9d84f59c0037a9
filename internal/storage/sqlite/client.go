// Package sqlite is the persistence layer: products and their crawl
// history, generated reviews, the pipeline job queue with its logs, and the
// schedule singleton all live in one SQLite database shared by the api and
// worker processes.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pickgear/backend/pkg/logger"
)

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	logger.Info("sqlite store opened", zap.String("path", dbPath))
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		slug TEXT UNIQUE NOT NULL,
		maker TEXT NOT NULL,
		model TEXT NOT NULL,
		cpu TEXT NOT NULL DEFAULT 'Unknown',
		ram REAL NOT NULL DEFAULT 0,
		storage TEXT NOT NULL DEFAULT 'Unknown',
		gpu TEXT NOT NULL DEFAULT 'Unknown',
		display_size REAL NOT NULL DEFAULT 0,
		weight REAL NOT NULL DEFAULT 0,
		os TEXT NOT NULL DEFAULT 'Unknown',
		price REAL NOT NULL DEFAULT 0,
		image_url TEXT NOT NULL DEFAULT '',
		affiliate_url TEXT NOT NULL DEFAULT '',
		category_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id);

	CREATE TABLE IF NOT EXISTS crawl_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id TEXT NOT NULL,
		url TEXT NOT NULL,
		html_hash TEXT NOT NULL,
		last_crawled_at INTEGER NOT NULL,
		FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_crawl_history_product ON crawl_history(product_id);
	CREATE INDEX IF NOT EXISTS idx_crawl_history_url ON crawl_history(url);

	CREATE TABLE IF NOT EXISTS web_review_refs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id TEXT NOT NULL,
		source TEXT NOT NULL,
		url TEXT NOT NULL,
		summary_text TEXT NOT NULL,
		sentiment TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_web_review_refs_product ON web_review_refs(product_id);

	CREATE TABLE IF NOT EXISTS product_reviews (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		summary TEXT NOT NULL,
		pros TEXT NOT NULL,
		cons TEXT NOT NULL,
		recommended_for TEXT NOT NULL,
		not_recommended_for TEXT NOT NULL,
		spec_highlights TEXT NOT NULL,
		strategy TEXT,
		sentiment_analysis TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_product_reviews_product ON product_reviews(product_id, created_at);

	CREATE TABLE IF NOT EXISTS pipeline_jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'PENDING',
		triggered_by TEXT NOT NULL,
		category TEXT NOT NULL,
		makers TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_status ON pipeline_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_created ON pipeline_jobs(created_at);

	CREATE TABLE IF NOT EXISTS pipeline_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (job_id) REFERENCES pipeline_jobs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_pipeline_logs_job ON pipeline_logs(job_id);

	CREATE TABLE IF NOT EXISTS pipeline_schedule (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		enabled INTEGER NOT NULL DEFAULT 0,
		frequency TEXT NOT NULL DEFAULT 'daily',
		hour INTEGER NOT NULL DEFAULT 3,
		minute INTEGER NOT NULL DEFAULT 0,
		day_of_week INTEGER,
		category TEXT NOT NULL,
		makers TEXT NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("sqlite schema initialized")
	return nil
}
