// internal/utils/metrics.go
package utils

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector 进程内的 Prometheus 指标集合
type MetricsCollector struct {
	registry *prometheus.Registry

	llmRequests  *prometheus.CounterVec
	llmDuration  *prometheus.HistogramVec
	llmTokens    *prometheus.HistogramVec
	apiRequests  *prometheus.CounterVec
	apiDuration  *prometheus.HistogramVec
	sessions     prometheus.Gauge
	gameOutcomes *prometheus.CounterVec
	wsClients    prometheus.Gauge
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector 返回全局指标集合
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

// NewMetricsCollector 在独立的 registry 上注册全部指标
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &MetricsCollector{
		registry: reg,
		llmRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jade_llm_requests_total",
			Help: "Total number of LLM provider calls.",
		}, []string{"provider", "method", "status"}),
		llmDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jade_llm_request_duration_seconds",
			Help:    "Duration of LLM provider calls.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		}, []string{"provider", "method"}),
		llmTokens: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jade_llm_tokens",
			Help:    "Token counts reported by providers.",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		}, []string{"provider", "kind"}),
		apiRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jade_api_requests_total",
			Help: "HTTP API requests by route and status code.",
		}, []string{"route", "method", "code"}),
		apiDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jade_api_request_duration_seconds",
			Help:    "HTTP API latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jade_game_sessions_active",
			Help: "Game sessions currently held in memory.",
		}),
		gameOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jade_game_outcomes_total",
			Help: "Finished games by final status.",
		}, []string{"status"}),
		wsClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jade_ws_clients",
			Help: "Connected WebSocket clients.",
		}),
	}
}

// Registry 返回底层 registry
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 暴露 /metrics
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordLLMRequest 记录一次供应商调用
func (m *MetricsCollector) RecordLLMRequest(provider, method string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.llmRequests.WithLabelValues(provider, method, status).Inc()
	m.llmDuration.WithLabelValues(provider, method).Observe(duration.Seconds())
}

// RecordLLMTokens 记录令牌用量，0 值忽略
func (m *MetricsCollector) RecordLLMTokens(provider string, promptTokens, outputTokens int) {
	if promptTokens > 0 {
		m.llmTokens.WithLabelValues(provider, "prompt").Observe(float64(promptTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(provider, "output").Observe(float64(outputTokens))
	}
}

// RecordAPIRequest 记录一次HTTP请求
func (m *MetricsCollector) RecordAPIRequest(route, method string, statusCode int, duration time.Duration) {
	m.apiRequests.WithLabelValues(route, method, strconv.Itoa(statusCode)).Inc()
	m.apiDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// SetActiveSessions 设置当前会话数
func (m *MetricsCollector) SetActiveSessions(n int) {
	m.sessions.Set(float64(n))
}

// RecordGameOutcome 记录一局结束
func (m *MetricsCollector) RecordGameOutcome(status string) {
	m.gameOutcomes.WithLabelValues(status).Inc()
}

// IncWSClients 连接数加一
func (m *MetricsCollector) IncWSClients() { m.wsClients.Inc() }

// DecWSClients 连接数减一
func (m *MetricsCollector) DecWSClients() { m.wsClients.Dec() }
