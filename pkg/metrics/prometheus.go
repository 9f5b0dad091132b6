// Package metrics exports query cache outcomes to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/goliatone/go-query-cache/querycache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ querycache.Recorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder implements querycache.Recorder with Prometheus counters
type PrometheusRecorder struct {
	registry *prometheus.Registry

	hitsTotal     *prometheus.CounterVec
	missesTotal   *prometheus.CounterVec
	bypassesTotal prometheus.Counter
	flushesTotal  *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder with its own registry. Metric names
// are prefixed with namespace ("query_cache" when empty).
func NewPrometheusRecorder(namespace string) *PrometheusRecorder {
	if namespace == "" {
		namespace = "query_cache"
	}

	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),

		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hits_total",
				Help:      "Total number of queries served from the cache",
			},
			[]string{"driver"},
		),

		missesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "misses_total",
				Help:      "Total number of cacheable queries sent to the database",
			},
			[]string{"driver"},
		),

		bypassesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bypasses_total",
				Help:      "Total number of queries executed without consulting the cache",
			},
		),

		flushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flushes_total",
				Help:      "Total number of flushes, by driver and whether tags were used",
			},
			[]string{"driver", "tagged"},
		),
	}

	r.registry.MustRegister(
		r.hitsTotal,
		r.missesTotal,
		r.bypassesTotal,
		r.flushesTotal,
	)
	return r
}

func (r *PrometheusRecorder) Hit(driver string) {
	r.hitsTotal.WithLabelValues(driver).Inc()
}

func (r *PrometheusRecorder) Miss(driver string) {
	r.missesTotal.WithLabelValues(driver).Inc()
}

func (r *PrometheusRecorder) Bypass() {
	r.bypassesTotal.Inc()
}

func (r *PrometheusRecorder) Flush(driver string, tagged bool) {
	r.flushesTotal.WithLabelValues(driver, strconv.FormatBool(tagged)).Inc()
}

// Registry returns the registry the collectors are registered on.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler returns an HTTP handler for Prometheus metrics scraping
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Snapshot returns the current value of every counter keyed by metric name
// and label values, e.g. "query_cache_hits_total{driver=memory}".
func (r *PrometheusRecorder) Snapshot() (map[string]float64, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			name := family.GetName()
			if labels := metric.GetLabel(); len(labels) > 0 {
				name += "{"
				for i, label := range labels {
					if i > 0 {
						name += ","
					}
					name += label.GetName() + "=" + label.GetValue()
				}
				name += "}"
			}
			out[name] = metric.GetCounter().GetValue()
		}
	}
	return out, nil
}
