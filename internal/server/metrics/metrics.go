// Package metrics exposes Prometheus collectors of the auth service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portal"

// Metrics набор метрик сервиса на собственном реестре
type Metrics struct {
	registry        *prometheus.Registry
	loginSteps      *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	gatewayRequests *prometheus.CounterVec
}

// New создает и регистрирует метрики
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loginSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_steps_total",
			Help:      "Login flow operations by step and outcome.",
		}, []string{"step", "outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Requests to the clinic ERP by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.loginSteps,
		m.httpDuration,
		m.gatewayRequests,
	)

	return m
}

// Handler отдает метрики в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLoginStep учитывает результат шага входа
func (m *Metrics) ObserveLoginStep(step, outcome string) {
	m.loginSteps.WithLabelValues(step, outcome).Inc()
}

// ObserveHTTPRequest учитывает длительность HTTP запроса
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// ObserveGatewayRequest учитывает запрос к ERP
func (m *Metrics) ObserveGatewayRequest(operation, outcome string) {
	m.gatewayRequests.WithLabelValues(operation, outcome).Inc()
}
