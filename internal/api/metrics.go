package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SSE stream kinds, used as the "stream" label.
const (
	streamRegistration = "registration"
	streamQuota        = "quota"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scribe_http_requests_total",
		Help: "HTTP requests served, by route and status.",
	}, []string{"method", "route", "status"})

	requestSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scribe_http_request_duration_seconds",
		Help:    "Latency of non-streaming HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	streamsOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scribe_sse_streams_open",
		Help: "Event streams currently held open by clients.",
	}, []string{"stream"})

	streamEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scribe_sse_events_sent_total",
		Help: "Events written to SSE clients.",
	}, []string{"stream"})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestSeconds, streamsOpen, streamEventsTotal)
	for _, kind := range []string{streamRegistration, streamQuota} {
		streamsOpen.WithLabelValues(kind)
		streamEventsTotal.WithLabelValues(kind)
	}
}

// metricsMiddleware counts every request under its chi route pattern. Event
// streams stay open for the life of a job, so their latency is left out of the
// histogram and tracked by streamsOpen instead.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routeLabel(r)
		requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		if ww.Header().Get("Content-Type") != "text/event-stream" {
			requestSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}

// routeLabel keeps job and registration IDs out of label values.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
