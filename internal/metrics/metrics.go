// Package metrics expone metricas Prometheus del gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registra las llamadas al proveedor y las respuestas HTTP.
// Implementa provider.Observer.
type Collector struct {
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	httpResponses   *prometheus.CounterVec
}

// NewCollector crea un Collector y registra sus metricas en reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_gateway_provider_calls_total",
			Help: "Llamadas al proveedor de autenticacion por operacion y resultado",
		}, []string{"operation", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auth_gateway_provider_latency_seconds",
			Help:    "Latencia de las llamadas al proveedor (segundos)",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		httpResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_gateway_http_responses_total",
			Help: "Respuestas HTTP por ruta y status",
		}, []string{"method", "route", "status_code"}),
	}

	reg.MustRegister(c.providerCalls, c.providerLatency, c.httpResponses)
	return c
}

// ObserveProviderCall registra una llamada al proveedor.
func (c *Collector) ObserveProviderCall(op, outcome string, elapsed time.Duration) {
	c.providerCalls.WithLabelValues(op, outcome).Inc()
	c.providerLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordHTTPResponse registra una respuesta HTTP. route es el patron
// registrado, no el path concreto.
func (c *Collector) RecordHTTPResponse(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	c.httpResponses.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Handler devuelve el handler de scrape de Prometheus.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
