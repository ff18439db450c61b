// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。nil 的 *Collector 可以安全调用所有 Record 方法。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 流式会话指标
	streamSessionsTotal    *prometheus.CounterVec
	streamSessionDuration  *prometheus.HistogramVec
	streamFirstTokenDelay  *prometheus.HistogramVec
	streamTokensTotal      *prometheus.CounterVec
	streamActiveSessions   *prometheus.GaugeVec
	streamAbandonedTasks   *prometheus.CounterVec
	streamTaskPanics       *prometheus.CounterVec
	streamRejectedRequests *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 流式会话指标
	c.streamSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_sessions_total",
			Help:      "Total number of finished stream sessions",
		},
		[]string{"source", "outcome"}, // outcome: completed, error code
	)

	c.streamSessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_session_duration_seconds",
			Help:      "Stream session duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"source"},
	)

	c.streamFirstTokenDelay = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_first_token_seconds",
			Help:      "Delay until the first content token in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"source"},
	)

	c.streamTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_tokens_total",
			Help:      "Total number of content tokens emitted",
		},
		[]string{"source"},
	)

	c.streamActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_active_sessions",
			Help:      "Number of open stream sessions",
		},
		[]string{"source"},
	)

	c.streamAbandonedTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_abandoned_tasks_total",
			Help:      "Background tasks that ignored cancellation past the grace period",
		},
		[]string{"task"},
	)

	c.streamTaskPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_task_panics_total",
			Help:      "Background tasks that panicked inside a stream session",
		},
		[]string{"source"},
	)

	c.streamRejectedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_rejected_requests_total",
			Help:      "Stream requests rejected before a session was opened",
		},
		[]string{"reason"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🌊 流式会话指标记录
// =============================================================================

// RecordSessionStart 记录会话打开
func (c *Collector) RecordSessionStart(source string) {
	if c == nil {
		return
	}
	c.streamActiveSessions.WithLabelValues(source).Inc()
}

// RecordSessionEnd 记录会话结束。outcome 为 "completed" 或错误码。
func (c *Collector) RecordSessionEnd(source, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.streamActiveSessions.WithLabelValues(source).Dec()
	c.streamSessionsTotal.WithLabelValues(source, outcome).Inc()
	c.streamSessionDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordFirstToken 记录首个内容 Token 的延迟
func (c *Collector) RecordFirstToken(source string, delay time.Duration) {
	if c == nil {
		return
	}
	c.streamFirstTokenDelay.WithLabelValues(source).Observe(delay.Seconds())
}

// RecordToken 记录一个内容 Token
func (c *Collector) RecordToken(source string) {
	if c == nil {
		return
	}
	c.streamTokensTotal.WithLabelValues(source).Inc()
}

// RecordAbandonedTasks 记录宽限期后被放弃的任务
func (c *Collector) RecordAbandonedTasks(names []string) {
	if c == nil {
		return
	}
	for _, name := range names {
		c.streamAbandonedTasks.WithLabelValues(name).Inc()
	}
}

// RecordTaskPanics 记录会话内发生 panic 的后台任务数
func (c *Collector) RecordTaskPanics(source string, n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.streamTaskPanics.WithLabelValues(source).Add(float64(n))
}

// RecordRejected 记录打开会话前被拒绝的请求
func (c *Collector) RecordRejected(reason string) {
	if c == nil {
		return
	}
	c.streamRejectedRequests.WithLabelValues(reason).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
