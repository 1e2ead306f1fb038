// Package metrics exposes the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"p9e.in/farmops/utils"
)

const namespace = "farmops"

var (
	// Request metrics
	RequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RequestDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Real-time metrics
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections",
		Help:      "Number of live real-time connections held by this process",
	})

	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Notifications handed to the broker, by kind",
		},
		[]string{"kind"},
	)

	BrokerPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broker_publish_errors_total",
		Help:      "Broker publish failures",
	})

	// Scheduler metrics
	SchedulerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduler_ticks_total",
		Help:      "Completed deadline scheduler ticks",
	})

	SchedulerTenantErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduler_tenant_errors_total",
		Help:      "Tenants skipped during a tick because of an error",
	})

	// Report metrics
	ReportSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_submissions_total",
			Help:      "Daily report submission attempts, by result",
		},
		[]string{"result"},
	)
)

// Middleware records request count and latency. The path label is the
// mux route template so ids do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := utils.NewStatusRecorder(w)

		next.ServeHTTP(rec, r)

		path := routeTemplate(r)
		RequestCounter.WithLabelValues(r.Method, path, strconv.Itoa(rec.Status)).Inc()
		RequestDurationHistogram.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
