package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vesaa/gatewatch/internal/models"
)

const namespace = "gatewatch"

// PrometheusRegistry returns a registry exporting the same figures as
// Build in Prometheus form. Gauges are evaluated at scrape time, so a
// scrape sees the registries as they are at that instant.
func (b *Builder) PrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	for _, server := range models.Servers {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "connections",
			Help:        "Open WebSocket connections per server.",
			ConstLabels: prometheus.Labels{"server": string(server)},
		}, func() float64 {
			return float64(b.counts.Count(server))
		}))
	}

	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the server started.",
		}, func() float64 {
			return b.now().Sub(b.started).Seconds()
		}),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// PrometheusHandler serves PrometheusRegistry in the text exposition format.
func (b *Builder) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(b.PrometheusRegistry(), promhttp.HandlerOpts{})
}
