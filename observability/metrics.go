package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ModuleMetrics records RPC module activity: request counts, error counts
// keyed by error kind, and handler latency.
type ModuleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *ModuleMetrics
)

// Modules returns the lazily-initialised module metrics registry. Metrics are
// registered against the default prometheus registerer exactly once.
func Modules() *ModuleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &ModuleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gridchain",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total requests handled per native module method.",
			}, []string{"module", "method"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gridchain",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total errored requests per native module method.",
			}, []string{"module", "method", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "gridchain",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Duration of native module requests in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(moduleRegistry.requests, moduleRegistry.errors, moduleRegistry.latency)
	})
	return moduleRegistry
}

func splitMethod(method string) (string, string) {
	if idx := strings.IndexByte(method, '_'); idx > 0 {
		return method[:idx], method[idx+1:]
	}
	return "core", method
}

// Observe records one handled request.
func (m *ModuleMetrics) Observe(method string, start time.Time, errKind string) {
	if m == nil {
		return
	}
	module, op := splitMethod(method)
	m.requests.WithLabelValues(module, op).Inc()
	m.latency.WithLabelValues(module, op).Observe(time.Since(start).Seconds())
	if errKind != "" {
		m.errors.WithLabelValues(module, op, errKind).Inc()
	}
}
