package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aura-identity-service/internal/domain"
)

// Metrics はHTTPとレジャー呼び出しのPrometheusメトリクスを保持する。
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	calls           *prometheus.CounterVec
	callWeight      *prometheus.CounterVec
}

// NewMetrics は専用のレジストリにメトリクスを登録する。
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aura",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aura",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aura",
			Name:      "ledger_calls_total",
			Help:      "State-changing ledger calls by call and result.",
		}, []string{"call", "result"}),
		callWeight: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aura",
			Name:      "ledger_call_weight_total",
			Help:      "Sum of declared weights of successful ledger calls.",
		}, []string{"call"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.calls,
		m.callWeight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveCall はレジャー呼び出しの結果を記録する。
func (m *Metrics) ObserveCall(call domain.Call, result string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(string(call), result).Inc()
	if result == "success" {
		m.callWeight.WithLabelValues(string(call)).Add(float64(call.Weight()))
	}
}

// Instrument はリクエスト数とレイテンシをchiのルートパターン単位で記録する。
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler は /metrics 用のハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
