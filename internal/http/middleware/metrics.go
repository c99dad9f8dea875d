// Package middleware contains the gin middleware of the directory API.
//
// metrics.go exports request counters, latency and response size per
// registered route, plus a gauge of open live-directory websockets. Unmatched
// requests share the "unmatched" route label so scanners cannot blow up
// cardinality.
package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedRoute = "unmatched"

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// Directory listings are the largest bodies; buckets run to 5MiB.
	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"method", "path"},
	)

	wsConns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "directory_live_connections",
			Help: "Open websocket connections streaming the live directory.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, wsConns)
}

// Metrics instruments every request. Install it after Recovery so panics are
// counted as the 500 they turn into.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInflight.Inc()
		timer := prometheus.NewTimer(prometheus.ObserverFunc(func(secs float64) {
			httpLat.WithLabelValues(c.Request.Method, metricRoute(c)).Observe(secs)
		}))
		defer httpInflight.Dec()

		c.Next()

		timer.ObserveDuration()
		observeResponse(c.Request.Method, metricRoute(c), c.Writer.Status(), c.Writer.Size())
	}
}

func metricRoute(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedRoute
}

// observeResponse records one finished request. size is -1 for hijacked
// websocket responses, which have no body to measure.
func observeResponse(method, route string, status, size int) {
	httpReqs.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	if size >= 0 {
		httpRespSize.WithLabelValues(method, route).Observe(float64(size))
	}
}

// TrackLiveConnection counts one open websocket until the returned func runs.
func TrackLiveConnection() (done func()) {
	wsConns.Inc()
	return wsConns.Dec
}
