package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messenger_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messenger_messages_recorded_total",
			Help: "Messages whose fan-out completed",
		},
	)

	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messenger_conversations_created_total",
			Help: "Conversation identities created",
		},
	)

	FanoutWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_fanout_writes_total",
			Help: "Fan-out writes by step and result",
		},
		[]string{"step", "result"}, // result: "success" or "failure"
	)

	OrphanedSummaries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messenger_orphaned_summaries_total",
			Help: "Summaries left behind by a lost conversation creation race",
		},
	)

	SkippedIndexRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messenger_skipped_index_rows_total",
			Help: "User index rows skipped because their summary is missing",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messenger_store_latency_seconds",
			Help:    "Store operation latency, retries included",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"},
	)

	StoreRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_store_retries_total",
			Help: "Transient store errors that were retried",
		},
		[]string{"op"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_summary_cache_lookups_total",
			Help: "Summary cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss" or "error"
	)
)
