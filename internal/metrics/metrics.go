// Package metrics exposes Prometheus metrics for HTTP traffic and order flow.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sale sources.
const (
	SourceOrder  = "order"
	SourceDirect = "direct"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trgovina_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trgovina_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ordersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trgovina_orders_placed_total",
		Help: "Orders placed by customers",
	})

	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trgovina_order_transitions_total",
			Help: "Applied order status transitions",
		},
		[]string{"from", "to"},
	)

	salesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trgovina_sales_recorded_total",
			Help: "Sale records appended to the ledger",
		},
		[]string{"source"},
	)
)

// OrderPlaced counts a newly placed order.
func OrderPlaced() {
	ordersPlaced.Inc()
}

// OrderTransitioned counts an applied status change.
func OrderTransitioned(from, to string) {
	orderTransitions.WithLabelValues(from, to).Inc()
}

// SalesRecorded counts n sales from the given source.
func SalesRecorded(source string, n int) {
	salesRecorded.WithLabelValues(source).Add(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes websocket upgrades through to the underlying writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware records request counts and latencies. It must wrap the
// ServeMux directly so the matched route pattern is available as the path
// label; unmatched requests are labelled "unmatched".
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
