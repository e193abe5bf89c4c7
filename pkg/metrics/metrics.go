// Package metrics 提供 Prometheus 指标集合与 /metrics 处理器
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 服务指标集合
type Metrics struct {
	// HTTP 请求计数（按方法/路由/状态码）
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时（按方法/路由）
	HTTPRequestDuration *prometheus.HistogramVec
	// 正在处理中的 HTTP 请求数
	HTTPRequestsInFlight prometheus.Gauge

	// 发件箱事件投递计数
	OutboxPublishedTotal prometheus.Counter
	// 发件箱事件投递失败计数
	OutboxPublishErrorsTotal prometheus.Counter

	// 到期扫描轮次计数
	SweepRunsTotal prometheus.Counter

	registry *prometheus.Registry
}

// New 创建并注册指标集合，使用独立 registry 避免重复注册冲突
func New(serviceName string) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p2p",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "p2p",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "p2p",
			Subsystem: serviceName,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		}),
		OutboxPublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "p2p",
			Subsystem: serviceName,
			Name:      "outbox_published_total",
			Help:      "Total outbox events published to the broker",
		}),
		OutboxPublishErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "p2p",
			Subsystem: serviceName,
			Name:      "outbox_publish_errors_total",
			Help:      "Total outbox publish failures",
		}),
		SweepRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "p2p",
			Subsystem: serviceName,
			Name:      "sweep_runs_total",
			Help:      "Total expiry sweep rounds executed",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.OutboxPublishedTotal,
		m.OutboxPublishErrorsTotal,
		m.SweepRunsTotal,
	)

	return m
}

// Handler 返回用于挂载 /metrics 路由的 HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
