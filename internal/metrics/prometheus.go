package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PagesCrawled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickgear_pages_crawled_total",
			Help: "Total pages fetched through the headless browser",
		},
		[]string{"status"},
	)

	CrawlDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pickgear_crawl_duration_seconds",
			Help:    "Headless-browser fetch duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
		},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickgear_llm_requests_total",
			Help: "Total LLM invocations",
		},
		[]string{"backend", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pickgear_llm_request_duration_seconds",
			Help:    "LLM invocation duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120},
		},
	)

	ProductsSaved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pickgear_products_saved_total",
			Help: "Total product upserts performed by the pipeline",
		},
	)

	PipelineItemsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickgear_pipeline_items_failed_total",
			Help: "Per-item failures isolated inside a pipeline run",
		},
		[]string{"stage"},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickgear_jobs_total",
			Help: "Pipeline jobs by terminal status and trigger",
		},
		[]string{"status", "trigger"},
	)

	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pickgear_job_duration_seconds",
			Help:    "Wall-clock duration of one pipeline job",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600},
		},
	)

	HashCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pickgear_hash_cache_hits_total",
			Help: "Pages skipped because their content hash was unchanged",
		},
	)

	HashCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pickgear_hash_cache_misses_total",
			Help: "Pages whose content hash was new or changed",
		},
	)
)

func Init() {
	prometheus.MustRegister(PagesCrawled)
	prometheus.MustRegister(CrawlDuration)
	prometheus.MustRegister(LLMRequests)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(ProductsSaved)
	prometheus.MustRegister(PipelineItemsFailed)
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(HashCacheHits)
	prometheus.MustRegister(HashCacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
