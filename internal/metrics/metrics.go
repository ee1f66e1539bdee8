package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records probe call and publish metrics. It is safe for concurrent use.
type Collector struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	publishTotal *prometheus.CounterVec
}

// NewCollector registers the probe collectors on registry.
func NewCollector(registry prometheus.Registerer) *Collector {
	return &Collector{
		callsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsonapi_probe_calls_total",
				Help: "Total number of JSON API calls by outcome kind",
			},
			[]string{"endpoint", "kind"},
		),
		callDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jsonapi_probe_call_duration_seconds",
				Help:    "Duration of JSON API calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		publishTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsonapi_probe_publish_total",
				Help: "Outcome events handed to publishers by result (published, failed, skipped)",
			},
			[]string{"endpoint", "result"},
		),
	}
}

// RecordCall records one finished call.
func (c *Collector) RecordCall(endpoint, kind string, d time.Duration) {
	if c == nil {
		return
	}
	c.callsTotal.WithLabelValues(endpoint, kind).Inc()
	c.callDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordPublish records what happened to an outcome event.
func (c *Collector) RecordPublish(endpoint, result string) {
	if c == nil {
		return
	}
	c.publishTotal.WithLabelValues(endpoint, result).Inc()
}

// Handler serves metrics gathered from gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
