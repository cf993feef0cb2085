// Package metrics exposes Prometheus instrumentation for storage
// operations and the HTTP server that serves the scrape endpoint.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/siilo/siilo/interfaces"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "siilo",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Storage operations by locator scheme, operation and outcome.",
	}, []string{"scheme", "operation", "status"})

	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "siilo",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Storage operation latency by locator scheme and operation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"scheme", "operation"})
)

// ObserveOperation records one storage operation started at start.
func ObserveOperation(scheme, operation string, start time.Time, err error) {
	opsTotal.WithLabelValues(scheme, operation, statusLabel(err)).Inc()
	opDuration.WithLabelValues(scheme, operation).Observe(time.Since(start).Seconds())
}

// statusLabel folds an error into a bounded label set so the counter's
// cardinality stays fixed.
func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, interfaces.ErrNotFound):
		return "not_found"
	case errors.Is(err, interfaces.ErrMalformedLocator):
		return "malformed_locator"
	case errors.Is(err, interfaces.ErrUnknownScheme):
		return "unknown_scheme"
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		return "unavailable"
	default:
		return "fault"
	}
}

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server bound to addr. name is kept for the process
// label convention even though the default registry is process-global.
func New(name, addr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
