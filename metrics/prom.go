package metrics
import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)
var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pbnj_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pbnj_paste_retrieved_total",
		Help: "no. of pastes retrieved",
	})
	PasteDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pbnj_paste_deleted_total",
		Help: "no. of pastes deleted",
	})
	IDCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pbnj_id_collisions_total",
		Help: "no. of generated ids that were already taken",
	})
	RenderFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbnj_render_fallbacks_total",
			Help: "no. of renders that dropped to a lower fallback stage",
		},
		[]string{"stage"},
	)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbnj_cache_hits_total",
			Help: "no. of cache hits",
		},
		[]string{"tier"},
	)
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pbnj_cache_misses_total",
		Help: "no. of reads that fell through to sqlite",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pbnj_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbnj_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
	RecentErrorRatePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pbnj_recent_error_rate_percent",
		Help: "5xx responses as a percentage of requests over the last 5 minutes",
	})
	CircuitOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pbnj_db_circuit_open",
		Help: "1 while the sqlite circuit breaker is open",
	})
)
