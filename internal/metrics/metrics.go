package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "watchparty_ws_connections",
		Help: "Current number of active websocket connections",
	})
	WsMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watchparty_chat_messages_total",
		Help: "Total number of chat messages broadcast",
	})
	WsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchparty_ws_rejected_total",
		Help: "Inbound websocket events rejected, by error code",
	}, []string{"code"})
	HandTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchparty_hand_transitions_total",
		Help: "Hand raise state transitions",
	}, []string{"raised"})
	AssistantRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchparty_assistant_requests_total",
		Help: "Assistant gateway calls by outcome",
	}, []string{"outcome"})
	AssistantLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "watchparty_assistant_latency_seconds",
		Help:    "Assistant gateway call latency in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	})
	AssistantDiscardedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watchparty_assistant_discarded_total",
		Help: "Assistant replies dropped because the requester left or cleared the conversation",
	})
	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchparty_uploads_total",
		Help: "Video uploads by result",
	}, []string{"result"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(WsConnections, WsMessagesTotal, WsRejectedTotal, HandTransitionsTotal,
		AssistantRequestsTotal, AssistantLatency, AssistantDiscardedTotal, UploadsTotal,
		HttpRequestsTotal, HttpRequestDuration)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		// 静态资源走 NoRoute，FullPath 为空，统一归为一个标签避免基数膨胀。
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
