package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChatRequests      *prometheus.CounterVec
	UpstreamFailures  *prometheus.CounterVec
	ResponseAnomalies *prometheus.CounterVec
	InvokeDuration    *prometheus.HistogramVec
	RateLimited       prometheus.Counter
	ChatLogDropped    prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bedrockchat",
				Name:      "chat_requests_total",
				Help:      "Chat requests by HTTP status code",
			}, []string{"code"}),
			UpstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bedrockchat",
				Name:      "upstream_failures_total",
				Help:      "Bedrock invocations that failed hard",
			}, []string{"family"}),
			ResponseAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bedrockchat",
				Name:      "response_anomalies_total",
				Help:      "Bedrock replies that arrived in an unexpected shape",
			}, []string{"family"}),
			InvokeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "bedrockchat",
				Name:      "invoke_duration_seconds",
				Help:      "Bedrock InvokeModel latency",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
			}, []string{"family"}),
			RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bedrockchat",
				Name:      "rate_limited_total",
				Help:      "Chat requests denied by the rate limiter",
			}),
			ChatLogDropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bedrockchat",
				Name:      "chat_log_dropped_total",
				Help:      "Chat log records dropped because the writer queue was full",
			}),
		}
		prometheus.MustRegister(
			global.ChatRequests,
			global.UpstreamFailures,
			global.ResponseAnomalies,
			global.InvokeDuration,
			global.RateLimited,
			global.ChatLogDropped,
		)
	})
	return global
}
