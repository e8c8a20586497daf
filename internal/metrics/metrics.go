package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RemoteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookrequest_remote_requests_total",
		Help: "Total number of calls made to backend instances",
	}, []string{"instance", "operation", "status"})

	RemoteRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookrequest_remote_request_duration_seconds",
		Help:    "Duration of calls to backend instances in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"instance", "operation"})

	SearchResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bookrequest_search_results",
		Help:    "Number of unified items returned per search",
		Buckets: []float64{0, 1, 5, 10, 20, 40, 80},
	})

	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookrequest_reconcile_total",
		Help: "Request reconciliations by mode and outcome",
	}, []string{"mode", "outcome"})

	HttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookrequest_http_requests_total",
		Help: "Total number of HTTP requests served",
	}, []string{"method", "path", "status"})
)

// ObserveRemote records one backend call. status is the HTTP status code, or 0
// when the call never got a response.
func ObserveRemote(instance, operation string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	RemoteRequestsTotal.WithLabelValues(instance, operation, label).Inc()
	RemoteRequestDuration.WithLabelValues(instance, operation).Observe(elapsed.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware counts served requests. Paths are labelled by route pattern when the
// mux matched one, so ids in URLs do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		HttpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
	})
}
