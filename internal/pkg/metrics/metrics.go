package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 核心指标。由 InitMetrics 注册一次，各组件直接引用。
var (
	BidsPlacedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flipper_bids_placed_total",
		Help: "Number of successfully applied bids.",
	})

	BidsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flipper_bids_rejected_total",
		Help: "Number of rejected bids by reason.",
	}, []string{"reason"})

	BidRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flipper_bid_retries_total",
		Help: "Number of bid CAS conflicts that triggered a retry.",
	})

	RecommendDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flipper_recommend_duration_seconds",
		Help:    "Latency of recommendation computation.",
		Buckets: prometheus.DefBuckets,
	})

	ImageSearchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flipper_image_search_duration_seconds",
		Help:    "Latency of embedding similarity search.",
		Buckets: prometheus.DefBuckets,
	})

	EmbeddingJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flipper_embedding_jobs_total",
		Help: "Embedding backfill jobs by outcome (succeeded/failed/skipped).",
	}, []string{"outcome"})

	EmbeddingRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flipper_embedding_requests_total",
		Help: "Calls to the embedding provider by outcome.",
	}, []string{"outcome"})

	EmbedQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flipper_embed_queue_depth",
		Help: "Pending jobs in the embedding backfill queue.",
	})

	EmbedWorkerPoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flipper_embed_worker_pool_size",
		Help: "Configured embedding worker pool size.",
	})

	RateLimitWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flipper_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a rate limit token.",
		Buckets: []float64{.005, .05, .25, 1, 5, 15, 60},
	})

	RateLimitTimeoutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flipper_ratelimit_timeouts_total",
		Help: "Rate limit waits abandoned due to context cancellation.",
	})
)

var initOnce sync.Once

// InitMetrics 注册全部指标并记录 worker pool 规模。幂等。
func InitMetrics(workerPoolSize int) {
	initOnce.Do(func() {
		prometheus.MustRegister(
			BidsPlacedTotal,
			BidsRejectedTotal,
			BidRetriesTotal,
			RecommendDuration,
			ImageSearchDuration,
			EmbeddingJobsTotal,
			EmbeddingRequestsTotal,
			EmbedQueueDepth,
			EmbedWorkerPoolSize,
			RateLimitWaitDuration,
			RateLimitTimeoutTotal,
		)
	})
	EmbedWorkerPoolSize.Set(float64(workerPoolSize))
}
