package models

import "time"

// ProductSpecs is the structured result of LLM spec extraction. Numeric
// fields default to 0 and string fields to "Unknown" when the source page
// does not mention them, so a partial product can still be saved.
type ProductSpecs struct {
	Maker       string  `json:"maker"`
	Model       string  `json:"model"`
	CPU         string  `json:"cpu"`
	RAM         float64 `json:"ram"`
	Storage     string  `json:"storage"`
	GPU         string  `json:"gpu"`
	DisplaySize float64 `json:"display_size"`
	Weight      float64 `json:"weight"`
	OS          string  `json:"os"`
	Price       float64 `json:"price"`
}

// Product is one crawled item. Slug is the natural key: re-crawling the same
// product overwrites spec fields but never changes the slug or the ID.
type Product struct {
	ID           string       `json:"id"`
	Slug         string       `json:"slug"`
	Specs        ProductSpecs `json:"specs"`
	ImageURL     string       `json:"imageUrl"`
	AffiliateURL string       `json:"affiliateUrl"`
	CategoryID   string       `json:"categoryId"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// CrawlHistory is an append-only record of one crawl attempt. HTMLHash is
// computed over the exact raw HTML passed to extraction so unchanged pages
// can be detected and skipped.
type CrawlHistory struct {
	URL           string    `json:"url"`
	HTMLHash      string    `json:"htmlHash"`
	LastCrawledAt time.Time `json:"lastCrawledAt"`
}

type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
	SentimentNegative Sentiment = "NEGATIVE"
)

// NormalizeSentiment maps free-form LLM output onto the three fixed
// categories, defaulting to NEUTRAL.
func NormalizeSentiment(s string) Sentiment {
	switch Sentiment(s) {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return Sentiment(s)
	default:
		return SentimentNeutral
	}
}

// WebReviewReference is a third-party opinion snapshot, immutable once saved.
type WebReviewReference struct {
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	SummaryText string    `json:"summaryText"`
	Sentiment   Sentiment `json:"sentiment"`
}

// ProductStrategy is the marketing/positioning analysis embedded into a
// generated review.
type ProductStrategy struct {
	TargetAudience   []string `json:"targetAudience"`
	KeySellingPoints []string `json:"keySellingPoints"`
	Competitors      []string `json:"competitors"`
	Positioning      string   `json:"positioning"`
}

type Reliability string

const (
	ReliabilityHigh   Reliability = "HIGH"
	ReliabilityMedium Reliability = "MEDIUM"
	ReliabilityLow    Reliability = "LOW"
)

// NormalizeReliability constrains LLM output to the three tiers, defaulting
// to LOW when the response is out of range.
func NormalizeReliability(s string) Reliability {
	switch Reliability(s) {
	case ReliabilityHigh, ReliabilityMedium, ReliabilityLow:
		return Reliability(s)
	default:
		return ReliabilityLow
	}
}

// SentimentAnalysis aggregates third-party web reviews into a 0-100 score
// with a reliability tier.
type SentimentAnalysis struct {
	OverallScore     int         `json:"overallScore"`
	CommonPraises    []string    `json:"commonPraises"`
	CommonComplaints []string    `json:"commonComplaints"`
	Reliability      Reliability `json:"reliability"`
}

// ProductReview is the generated critique article. Reviews are never
// mutated; a newer record supersedes older ones and the latest by creation
// time is authoritative for display.
type ProductReview struct {
	ID                string             `json:"id,omitempty"`
	ProductID         string             `json:"productId,omitempty"`
	Summary           string             `json:"summary"`
	Pros              []string           `json:"pros"`
	Cons              []string           `json:"cons"`
	RecommendedFor    string             `json:"recommendedFor"`
	NotRecommendedFor string             `json:"notRecommendedFor"`
	SpecHighlights    []string           `json:"specHighlights"`
	Strategy          *ProductStrategy   `json:"strategy,omitempty"`
	SentimentAnalysis *SentimentAnalysis `json:"sentimentAnalysis,omitempty"`
	CreatedAt         time.Time          `json:"createdAt,omitempty"`
}

type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)

type JobTrigger string

const (
	TriggerManual    JobTrigger = "MANUAL"
	TriggerScheduler JobTrigger = "SCHEDULER"
)

// PipelineJob is one unit of orchestration work. Status only ever moves
// forward through PENDING -> RUNNING -> DONE|FAILED; terminal states are
// final and retrying requires a new job.
type PipelineJob struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	TriggeredBy JobTrigger `json:"triggeredBy"`
	Category    string     `json:"category"`
	Makers      []string   `json:"makers"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// PipelineLog is one ordered log line belonging to exactly one job.
type PipelineLog struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"jobId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

// PipelineSchedule is the singleton cron-like configuration read by the
// worker's scheduler once per refresh interval.
type PipelineSchedule struct {
	Enabled   bool     `json:"enabled"`
	Frequency string   `json:"frequency"`
	Hour      int      `json:"hour"`
	Minute    int      `json:"minute"`
	DayOfWeek *int     `json:"dayOfWeek"`
	Category  string   `json:"category"`
	Makers    []string `json:"makers"`
}

// DefaultSchedule mirrors the seed configuration: disabled, daily at 03:00,
// laptops from the major makers.
func DefaultSchedule() *PipelineSchedule {
	return &PipelineSchedule{
		Enabled:   false,
		Frequency: FrequencyDaily,
		Hour:      3,
		Minute:    0,
		Category:  "노트북",
		Makers:    []string{"Apple", "Samsung", "LG", "ASUS", "Lenovo", "HP", "Dell"},
	}
}
