package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// IngestedEvents 成功应用到进度记录的播放事件数
	IngestedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracking_ingested_events_total",
			Help: "Total number of playback events applied to progress records",
		},
	)

	// RejectedBatches 被拒绝或失败的事件批次数。任何未入账的批次都必须在这里留痕。
	RejectedBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_rejected_batches_total",
			Help: "Total number of rejected or failed event batches by reason",
		},
		[]string{"reason"},
	)

	// SuspiciousFlags 收到的异常观看行为标记数
	SuspiciousFlags = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_suspicious_flags_total",
			Help: "Total number of anomaly flags reported by clients",
		},
		[]string{"flag"},
	)

	// ProgressConflictRetries 进度记录键级写冲突的内部重试次数
	ProgressConflictRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracking_progress_conflict_retries_total",
			Help: "Total number of internal retries due to progress record write conflicts",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(IngestedEvents)
	prometheus.MustRegister(RejectedBatches)
	prometheus.MustRegister(SuspiciousFlags)
	prometheus.MustRegister(ProgressConflictRetries)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
